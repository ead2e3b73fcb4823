// Package discovery walks a project tree and sorts every file into exactly
// one of six categories. Categorization is ordered: a file matching several
// heuristics lands in the earliest matching bucket, so tests beat
// documentation, documentation beats config, and so on down to the
// source-file default.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Category names are part of the tool-facing contract.
const (
	CategoryTests  = "tests"
	CategoryDocs   = "documentation"
	CategoryConfig = "config_files"
	CategoryBuild  = "build_files"
	CategoryData   = "data_files"
	CategorySource = "source_files"
)

// CategoryOrder is the fixed priority in which category predicates run.
var CategoryOrder = []string{
	CategoryTests,
	CategoryDocs,
	CategoryConfig,
	CategoryBuild,
	CategoryData,
	CategorySource,
}

// Listing is the result of one discovery walk. Every category key is always
// present; paths are relative to Root, slash-separated and sorted.
type Listing struct {
	Root       string              `json:"root"`
	TotalFiles int                 `json:"totalFiles"`
	Categories map[string][]string `json:"categories"`
}

// builtinExcludes are appended to every caller-supplied exclude list. They
// cover VCS internals, package caches, build output and the .tapestry
// management directory itself.
var builtinExcludes = []string{
	".git/**",
	".tapestry/**",
	"node_modules/**",
	"__pycache__/**",
	".venv/**",
	"venv/**",
	"dist/**",
	"build/**",
	"target/**",
	".idea/**",
	".vscode/**",
	".pytest_cache/**",
	".mypy_cache/**",
	".tox/**",
	"*.pyc",
	"*.pyo",
	".DS_Store",
}

// skipDirs short-circuits whole subtrees during the walk so the exclude
// globs never see their contents.
var skipDirs = map[string]bool{
	".git":          true,
	".tapestry":     true,
	"node_modules":  true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	"dist":          true,
	"build":         true,
	"target":        true,
	".idea":         true,
	".vscode":       true,
	".pytest_cache": true,
	".mypy_cache":   true,
	".tox":          true,
}

// hiddenDirAllow lists hidden directories that still get walked.
var hiddenDirAllow = map[string]bool{
	".github": true,
}

// Discover walks root once and categorizes every file that survives the
// exclude and include globs. Include defaults to accept-all. Unreadable
// subtrees are skipped, not fatal; only a missing root is an error.
func Discover(root string, include, exclude []string) (*Listing, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("discovering %s: %w", root, err)
	}

	excludes := make([]string, 0, len(exclude)+len(builtinExcludes))
	excludes = append(excludes, exclude...)
	excludes = append(excludes, builtinExcludes...)

	listing := &Listing{
		Root:       root,
		Categories: make(map[string][]string, len(CategoryOrder)),
	}
	for _, c := range CategoryOrder {
		listing.Categories[c] = []string{}
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p == root {
				return nil
			}
			name := d.Name()
			if skipDirs[name] {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") && !hiddenDirAllow[name] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if matchesAny(excludes, rel) {
			return nil
		}
		if len(include) > 0 && !matchesAny(include, rel) {
			return nil
		}

		cat := Categorize(rel)
		listing.Categories[cat] = append(listing.Categories[cat], rel)
		listing.TotalFiles++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	for _, c := range CategoryOrder {
		sort.Strings(listing.Categories[c])
	}
	return listing, nil
}

// Categorize assigns a relative slash path to the first matching category.
func Categorize(rel string) string {
	for _, c := range CategoryOrder[:len(CategoryOrder)-1] {
		if categoryPredicates[c](rel) {
			return c
		}
	}
	return CategorySource
}

// ─── Category Predicates ──────────────────────────────────────────────────────

var categoryPredicates = map[string]func(string) bool{
	CategoryTests:  isTest,
	CategoryDocs:   isDocumentation,
	CategoryConfig: isConfig,
	CategoryBuild:  isBuild,
	CategoryData:   isData,
}

var testDirs = map[string]bool{
	"test": true, "tests": true, "__tests__": true, "spec": true, "specs": true,
}

func isTest(rel string) bool {
	base := path.Base(rel)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if strings.HasPrefix(stem, "test_") || strings.HasSuffix(stem, "_test") {
		return true
	}
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	for _, seg := range strings.Split(path.Dir(rel), "/") {
		if testDirs[seg] {
			return true
		}
	}
	return false
}

var docExts = map[string]bool{
	".md": true, ".rst": true, ".txt": true, ".adoc": true,
}

var docBases = map[string]bool{
	"readme": true, "changelog": true, "license": true, "licence": true,
	"contributing": true, "authors": true, "notice": true, "todo": true,
}

func isDocumentation(rel string) bool {
	base := path.Base(rel)
	if docExts[strings.ToLower(path.Ext(base))] {
		return true
	}
	stem := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
	if docBases[stem] {
		return true
	}
	for _, seg := range strings.Split(path.Dir(rel), "/") {
		if seg == "docs" || seg == "doc" {
			return true
		}
	}
	return false
}

var configExts = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true, ".env": true,
	".properties": true,
}

var configBases = map[string]bool{
	".gitignore": true, ".gitattributes": true, ".editorconfig": true,
	".dockerignore": true, ".env": true, ".npmrc": true, ".eslintrc": true,
}

func isConfig(rel string) bool {
	base := path.Base(rel)
	if configBases[base] {
		return true
	}
	if configExts[strings.ToLower(path.Ext(base))] {
		return true
	}
	stem := strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
	return strings.Contains(stem, "config") || strings.Contains(stem, "settings")
}

var buildBases = map[string]bool{
	"makefile": true, "gnumakefile": true, "dockerfile": true,
	"jenkinsfile": true, "cmakelists.txt": true, "build.gradle": true,
	"settings.gradle": true, "pom.xml": true, "setup.py": true,
	"go.mod": true, "go.sum": true, "build": true, "workspace": true,
	"gemfile": true, "rakefile": true,
}

var buildExts = map[string]bool{
	".gradle": true, ".bazel": true, ".bzl": true, ".mk": true,
}

func isBuild(rel string) bool {
	base := strings.ToLower(path.Base(rel))
	if buildBases[base] {
		return true
	}
	return buildExts[path.Ext(base)]
}

var dataExts = map[string]bool{
	".csv": true, ".tsv": true, ".parquet": true, ".sqlite": true,
	".db": true, ".jsonl": true, ".ndjson": true, ".sql": true,
	".xml": true, ".avro": true,
}

func isData(rel string) bool {
	return dataExts[strings.ToLower(path.Ext(rel))]
}

// ─── Glob Matching ────────────────────────────────────────────────────────────

// matchesAny reports whether any pattern matches the relative path. Patterns
// follow path.Match syntax with two extensions: a trailing "/**" matches the
// whole subtree and a leading "**/" matches any path tail.
func matchesAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if matchGlob(pat, rel) {
			return true
		}
	}
	return false
}

func matchGlob(pat, rel string) bool {
	if prefix, ok := strings.CutSuffix(pat, "/**"); ok {
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	}
	if suffix, ok := strings.CutPrefix(pat, "**/"); ok {
		segs := strings.Split(rel, "/")
		for i := range segs {
			if ok, _ := path.Match(suffix, strings.Join(segs[i:], "/")); ok {
				return true
			}
		}
		return false
	}
	if ok, _ := path.Match(pat, rel); ok {
		return true
	}
	ok, _ := path.Match(pat, path.Base(rel))
	return ok
}
