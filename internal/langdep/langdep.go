// Package langdep extracts import and export symbols from source files
// using per-language regular expressions. Extraction is heuristic: no AST is
// built, so tokens inside comments or strings may match and obscure dynamic
// imports may not. Callers treat the results as best-effort signals, not
// ground truth.
package langdep

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Language identifies which extractor handled a file.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangJava       Language = "java"
	LangGo         Language = "go"
	LangRust       Language = "rust"
	LangGeneric    Language = "generic"
	LangUnknown    Language = "unknown"
)

// Record is the per-file analysis result. Dependents is always empty here;
// only project-wide aggregation can know who imports a file.
type Record struct {
	Path         string    `json:"path"`
	Language     Language  `json:"language"`
	Imports      []string  `json:"imports"`
	Exports      []string  `json:"exports"`
	Dependencies []string  `json:"dependencies"`
	Dependents   []string  `json:"dependents"`
	AnalyzedAt   time.Time `json:"analyzedAt"`
}

// DetectLanguage maps a file extension to its extractor language.
func DetectLanguage(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyw":
		return LangPython
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		return LangJavaScript
	case ".java":
		return LangJava
	case ".go":
		return LangGo
	case ".rs":
		return LangRust
	case ".c", ".h", ".cpp", ".cc", ".cxx", ".hpp", ".hxx":
		return LangGeneric
	default:
		return LangUnknown
	}
}

// Analyze reads a file and extracts its imports, exports and normalized
// dependency tokens. Any read failure (missing file, unreadable bytes,
// non-text content) yields an empty but well-formed record; analysis never
// fails loudly.
func Analyze(path string) Record {
	rec := Record{
		Path:         path,
		Language:     DetectLanguage(path),
		Imports:      []string{},
		Exports:      []string{},
		Dependencies: []string{},
		Dependents:   []string{},
		AnalyzedAt:   time.Now().UTC(),
	}

	data, err := os.ReadFile(path)
	if err != nil || !utf8.Valid(data) {
		return rec
	}

	imports, exports := extract(rec.Language, string(data))
	rec.Imports = sortedSet(imports)
	rec.Exports = sortedSet(exports)

	deps := make([]string, 0, len(rec.Imports))
	for _, imp := range rec.Imports {
		if d := normalizeDependency(rec.Language, imp); d != "" {
			deps = append(deps, d)
		}
	}
	rec.Dependencies = sortedSet(deps)
	return rec
}

// ─── Extractors ───────────────────────────────────────────────────────────────

type patternSet struct {
	imports []*regexp.Regexp
	exports []*regexp.Regexp
}

var extractors = map[Language]patternSet{
	LangPython: {
		imports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`),
			regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import`),
		},
		exports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*def\s+(\w+)`),
			regexp.MustCompile(`(?m)^\s*class\s+(\w+)`),
			regexp.MustCompile(`(?m)^([A-Z][A-Z0-9_]+)\s*=`),
		},
	},
	LangJavaScript: {
		imports: []*regexp.Regexp{
			regexp.MustCompile(`import\s+(?:type\s+)?[\w*\s{},$]*\s*from\s+['"]([^'"]+)['"]`),
			regexp.MustCompile(`import\s*\(\s*['"]([^'"]+)['"]\s*\)`),
			regexp.MustCompile(`import\s+['"]([^'"]+)['"]`),
			regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]\s*\)`),
			regexp.MustCompile(`export\s+[\w*\s{},$]*\s*from\s+['"]([^'"]+)['"]`),
		},
		exports: []*regexp.Regexp{
			regexp.MustCompile(`export\s+(?:default\s+)?(?:async\s+)?function\s+(\w+)`),
			regexp.MustCompile(`export\s+(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`),
			regexp.MustCompile(`export\s+(?:const|let|var)\s+(\w+)`),
			regexp.MustCompile(`export\s+(?:type|interface|enum)\s+(\w+)`),
			regexp.MustCompile(`exports\.(\w+)\s*=`),
		},
	},
	LangJava: {
		imports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.]+(?:\.\*)?)\s*;`),
		},
		exports: []*regexp.Regexp{
			regexp.MustCompile(`public\s+(?:final\s+|abstract\s+)?(?:class|interface|enum|record)\s+(\w+)`),
			regexp.MustCompile(`(?m)^\s*public\s+(?:static\s+)?[\w<>\[\],\s]+\s(\w+)\s*\(`),
		},
	},
	LangGo: {
		imports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^import\s+(?:[\w.]+\s+)?"([^"]+)"`),
		},
		exports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^func\s+(?:\([^)]+\)\s+)?([A-Z]\w*)`),
			regexp.MustCompile(`(?m)^type\s+([A-Z]\w*)`),
			regexp.MustCompile(`(?m)^(?:var|const)\s+([A-Z]\w*)`),
		},
	},
	LangRust: {
		imports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*use\s+([\w:]+)`),
			regexp.MustCompile(`(?m)^\s*extern\s+crate\s+(\w+)`),
		},
		exports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*pub\s+(?:async\s+)?fn\s+(\w+)`),
			regexp.MustCompile(`(?m)^\s*pub\s+(?:struct|enum|trait|union)\s+(\w+)`),
			regexp.MustCompile(`(?m)^\s*pub\s+(?:const|static)\s+(\w+)`),
			regexp.MustCompile(`(?m)^\s*pub\s+mod\s+(\w+)`),
		},
	},
	LangGeneric: {
		imports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*#\s*include\s*[<"]([^>"]+)[>"]`),
		},
		exports: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*(?:class|struct)\s+(\w+)`),
			regexp.MustCompile(`(?m)^\w[\w\s*]*\s[*&]?(\w+)\s*\([^;]*\)\s*\{`),
		},
	},
	// LangUnknown has no patterns on purpose: unrecognized files produce
	// empty records rather than noise.
	LangUnknown: {},
}

// Go groups most imports in a parenthesized block that a single line-anchored
// pattern cannot reach, so the block body gets a second pass.
var (
	goImportBlock = regexp.MustCompile(`(?s)import\s*\((.*?)\)`)
	quotedPath    = regexp.MustCompile(`"([^"]+)"`)
)

func extract(lang Language, text string) (imports, exports []string) {
	set := extractors[lang]
	imports = applyPatterns(set.imports, text)
	exports = applyPatterns(set.exports, text)

	if lang == LangGo {
		for _, block := range goImportBlock.FindAllStringSubmatch(text, -1) {
			for _, q := range quotedPath.FindAllStringSubmatch(block[1], -1) {
				imports = append(imports, q[1])
			}
		}
	}
	return imports, exports
}

func applyPatterns(patterns []*regexp.Regexp, text string) []string {
	var out []string
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if tok := strings.TrimSpace(m[1]); tok != "" {
				out = append(out, tok)
			}
		}
	}
	return out
}

// ─── Dependency Normalization ─────────────────────────────────────────────────

// normalizeDependency converts a raw import token into a slash-separated key
// suitable for matching against discovered project paths. Tokens that cannot
// name a project file (stdlib-ish single words stay as-is; empty after
// trimming is dropped) come back unchanged or empty.
func normalizeDependency(lang Language, imp string) string {
	s := imp
	switch lang {
	case LangPython:
		s = strings.TrimLeft(s, ".")
		s = strings.ReplaceAll(s, ".", "/")
	case LangJava:
		s = strings.TrimSuffix(s, ".*")
		s = strings.ReplaceAll(s, ".", "/")
	case LangRust:
		s = strings.ReplaceAll(s, "::", "/")
		for _, prefix := range []string{"crate/", "self/", "super/"} {
			s = strings.TrimPrefix(s, prefix)
		}
	case LangJavaScript, LangGeneric, LangGo:
		for strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
			s = strings.TrimPrefix(s, "./")
			s = strings.TrimPrefix(s, "../")
		}
	}
	s = strings.Trim(s, "/")
	return s
}

func sortedSet(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
