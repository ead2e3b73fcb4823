package langdep

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// --- DetectLanguage ---

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want Language
	}{
		{"main.py", LangPython},
		{"app.tsx", LangJavaScript},
		{"server.mjs", LangJavaScript},
		{"Main.java", LangJava},
		{"store.go", LangGo},
		{"lib.rs", LangRust},
		{"util.hpp", LangGeneric},
		{"notes.txt", LangUnknown},
		{"Makefile", LangUnknown},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.path); got != tt.want {
			t.Errorf("DetectLanguage(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

// --- Python ---

func TestAnalyze_Python(t *testing.T) {
	path := writeFile(t, t.TempDir(), "billing.py", `
import os
import json
from utils.helpers import format_money
from . import models

MAX_RETRIES = 3

def charge(amount):
    return amount

class Invoice:
    pass
`)

	rec := Analyze(path)
	if rec.Language != LangPython {
		t.Fatalf("Language = %s, want python", rec.Language)
	}
	for _, want := range []string{"os", "json", "utils.helpers"} {
		if !contains(rec.Imports, want) {
			t.Errorf("Imports missing %q: %v", want, rec.Imports)
		}
	}
	for _, want := range []string{"charge", "Invoice", "MAX_RETRIES"} {
		if !contains(rec.Exports, want) {
			t.Errorf("Exports missing %q: %v", want, rec.Exports)
		}
	}
	if !contains(rec.Dependencies, "utils/helpers") {
		t.Errorf("Dependencies missing utils/helpers: %v", rec.Dependencies)
	}
}

// --- JavaScript / TypeScript ---

func TestAnalyze_JavaScript(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app.ts", `
import React from 'react';
import { helper } from './utils/helper';
import './styles.css';
const lodash = require('lodash');
export { reexported } from '../shared/common';

export function render() {}
export default class App {}
export const VERSION = '1.0';
export interface Props {}
`)

	rec := Analyze(path)
	if rec.Language != LangJavaScript {
		t.Fatalf("Language = %s, want javascript", rec.Language)
	}
	for _, want := range []string{"react", "./utils/helper", "./styles.css", "lodash", "../shared/common"} {
		if !contains(rec.Imports, want) {
			t.Errorf("Imports missing %q: %v", want, rec.Imports)
		}
	}
	for _, want := range []string{"render", "App", "VERSION", "Props"} {
		if !contains(rec.Exports, want) {
			t.Errorf("Exports missing %q: %v", want, rec.Exports)
		}
	}
	// Relative prefixes are stripped for resolution.
	for _, want := range []string{"utils/helper", "shared/common"} {
		if !contains(rec.Dependencies, want) {
			t.Errorf("Dependencies missing %q: %v", want, rec.Dependencies)
		}
	}
}

// --- Go ---

func TestAnalyze_Go(t *testing.T) {
	path := writeFile(t, t.TempDir(), "server.go", `package server

import "fmt"

import (
	"context"
	"net/http"

	"example.com/project/internal/store"
)

func New() *Server { return nil }

type Server struct{}

func (s *Server) run() {}

var DefaultTimeout = 30

func internalHelper() {}
`)

	rec := Analyze(path)
	if rec.Language != LangGo {
		t.Fatalf("Language = %s, want go", rec.Language)
	}
	for _, want := range []string{"fmt", "context", "net/http", "example.com/project/internal/store"} {
		if !contains(rec.Imports, want) {
			t.Errorf("Imports missing %q: %v", want, rec.Imports)
		}
	}
	for _, want := range []string{"New", "Server", "DefaultTimeout"} {
		if !contains(rec.Exports, want) {
			t.Errorf("Exports missing %q: %v", want, rec.Exports)
		}
	}
	if contains(rec.Exports, "internalHelper") || contains(rec.Exports, "run") {
		t.Errorf("unexported names leaked into Exports: %v", rec.Exports)
	}
}

// --- Rust ---

func TestAnalyze_Rust(t *testing.T) {
	path := writeFile(t, t.TempDir(), "lib.rs", `
use std::fmt;
use crate::billing::invoice;
extern crate serde;

pub fn charge() {}
pub struct Invoice {}
pub mod handlers;
fn private_helper() {}
`)

	rec := Analyze(path)
	for _, want := range []string{"std::fmt", "crate::billing::invoice", "serde"} {
		if !contains(rec.Imports, want) {
			t.Errorf("Imports missing %q: %v", want, rec.Imports)
		}
	}
	for _, want := range []string{"charge", "Invoice", "handlers"} {
		if !contains(rec.Exports, want) {
			t.Errorf("Exports missing %q: %v", want, rec.Exports)
		}
	}
	if contains(rec.Exports, "private_helper") {
		t.Errorf("private fn leaked into Exports: %v", rec.Exports)
	}
	if !contains(rec.Dependencies, "billing/invoice") {
		t.Errorf("crate:: path not normalized: %v", rec.Dependencies)
	}
}

// --- Java ---

func TestAnalyze_Java(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Billing.java", `
import java.util.List;
import static org.junit.Assert.*;
import com.example.billing.Invoice;

public class Billing {
    public List<String> getInvoices(int limit) { return null; }
    private void helper() {}
}
`)

	rec := Analyze(path)
	for _, want := range []string{"java.util.List", "com.example.billing.Invoice"} {
		if !contains(rec.Imports, want) {
			t.Errorf("Imports missing %q: %v", want, rec.Imports)
		}
	}
	for _, want := range []string{"Billing", "getInvoices"} {
		if !contains(rec.Exports, want) {
			t.Errorf("Exports missing %q: %v", want, rec.Exports)
		}
	}
	if !contains(rec.Dependencies, "com/example/billing/Invoice") {
		t.Errorf("dotted import not normalized: %v", rec.Dependencies)
	}
}

// --- C-like ---

func TestAnalyze_CLike(t *testing.T) {
	path := writeFile(t, t.TempDir(), "util.c", `
#include <stdio.h>
#include "billing/invoice.h"

struct invoice_record { int id; };

int charge_invoice(int id) {
    return id;
}
`)

	rec := Analyze(path)
	for _, want := range []string{"stdio.h", "billing/invoice.h"} {
		if !contains(rec.Imports, want) {
			t.Errorf("Imports missing %q: %v", want, rec.Imports)
		}
	}
	if !contains(rec.Exports, "invoice_record") {
		t.Errorf("Exports missing invoice_record: %v", rec.Exports)
	}
}

// --- Failure absorption ---

func TestAnalyze_MissingFile_EmptyRecord(t *testing.T) {
	rec := Analyze(filepath.Join(t.TempDir(), "nope.py"))

	if rec.Language != LangPython {
		t.Errorf("Language = %s, want python (from extension)", rec.Language)
	}
	if rec.Imports == nil || rec.Exports == nil || rec.Dependencies == nil || rec.Dependents == nil {
		t.Error("record slices must be non-nil even on read failure")
	}
	if len(rec.Imports) != 0 || len(rec.Exports) != 0 {
		t.Errorf("expected empty record, got imports=%v exports=%v", rec.Imports, rec.Exports)
	}
	if rec.AnalyzedAt.IsZero() {
		t.Error("AnalyzedAt should be set even on failure")
	}
}

func TestAnalyze_BinaryContent_EmptyRecord(t *testing.T) {
	path := writeFile(t, t.TempDir(), "blob.py", string([]byte{0xff, 0xfe, 0x00, 0x41}))

	rec := Analyze(path)
	if len(rec.Imports) != 0 || len(rec.Exports) != 0 {
		t.Errorf("binary content should produce an empty record, got %+v", rec)
	}
}

func TestAnalyze_UnknownExtension_EmptyRecord(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.txt", "import os\nexport function x() {}\n")

	rec := Analyze(path)
	if rec.Language != LangUnknown {
		t.Errorf("Language = %s, want unknown", rec.Language)
	}
	if len(rec.Imports) != 0 || len(rec.Exports) != 0 {
		t.Errorf("unknown language should extract nothing, got %+v", rec)
	}
}

// --- Set semantics ---

func TestAnalyze_DeduplicatesAndSorts(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dup.py", `
import zlib
import zlib
import abc
from abc import ABC
`)

	rec := Analyze(path)
	count := 0
	for _, imp := range rec.Imports {
		if imp == "zlib" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("zlib appears %d times, want 1: %v", count, rec.Imports)
	}
	if !sort.StringsAreSorted(rec.Imports) {
		t.Errorf("Imports not sorted: %v", rec.Imports)
	}
	if !sort.StringsAreSorted(rec.Dependencies) {
		t.Errorf("Dependencies not sorted: %v", rec.Dependencies)
	}
}
