// Package operational implements the Operational Validator (spec.md
// §4.13): dependency manifest cross-referencing, fail-fast sandbox syntax
// checking, and a simple cross-file symbol-resolution check for
// first-party imports. Grounded on the teacher's
// internal/core/validator_syntax.go dispatch shape (reused here via the
// sandbox package) and internal/retrieval/tiered_context.go's import-
// extraction regexes (expandImportGraph/extractImports), adapted from
// file-discovery to dependency verification.
package operational

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"codenerd/internal/project"
	"codenerd/internal/sandbox"
)

// Result mirrors the shape produced by internal/quality.Result, per
// spec.md §4.13's "same shape as C12".
type Result struct {
	Passed      bool
	Issues      []string
	GateResults map[string]bool
	Summary     map[string]string
}

// Manifests maps language -> the set of package names declared as
// dependencies for that language (e.g. parsed go.mod require lines,
// requirements.txt entries, package.json dependencies).
type Manifests map[string][]string

// stdlibModules lists standard-library module prefixes per language that
// never need a manifest entry.
var stdlibModules = map[string]map[string]bool{
	"go": {
		"fmt": true, "os": true, "strings": true, "strconv": true, "context": true,
		"time": true, "sync": true, "errors": true, "io": true, "bytes": true,
		"encoding/json": true, "net/http": true, "sort": true, "math": true, "path/filepath": true,
	},
	"py": {
		"os": true, "sys": true, "json": true, "re": true, "time": true, "math": true,
		"collections": true, "itertools": true, "typing": true, "pathlib": true, "logging": true,
	},
}

var importExtractors = map[string]*regexp.Regexp{
	"go": regexp.MustCompile(`(?m)^\s*(?:import\s+)?"([a-zA-Z0-9_./-]+)"`),
	"py": regexp.MustCompile(`(?m)^(?:from\s+([a-zA-Z0-9_.]+)\s+import|import\s+([a-zA-Z0-9_.]+))`),
}

// Validator runs the operational gates of spec.md §4.13.
type Validator struct {
	Sandbox   sandbox.SyntaxChecker
	Manifests Manifests
}

// New builds a Validator.
func New(checker sandbox.SyntaxChecker, manifests Manifests) *Validator {
	return &Validator{Sandbox: checker, Manifests: manifests}
}

// Validate runs dependency, sandbox-syntax, and integration checks over
// modifiedFiles.
func (v *Validator) Validate(modifiedFiles map[string]string) Result {
	result := Result{
		GateResults: make(map[string]bool),
		Summary:     make(map[string]string),
	}

	depsOK := v.checkDependencies(modifiedFiles, &result)
	result.GateResults["dependencies"] = depsOK

	syntaxOK := v.checkSandboxSyntax(modifiedFiles, &result)
	result.GateResults["sandbox_syntax"] = syntaxOK

	integrationOK := v.checkIntegration(modifiedFiles, &result)
	result.GateResults["integration"] = integrationOK

	result.Passed = depsOK && syntaxOK && integrationOK
	result.Summary["files_checked"] = fmt.Sprintf("%d", len(modifiedFiles))
	result.Summary["issues_found"] = fmt.Sprintf("%d", len(result.Issues))
	return result
}

// checkDependencies verifies every non-stdlib, non-first-party import
// resolves to a manifest entry, per spec.md §4.13's Dependencies check.
func (v *Validator) checkDependencies(modifiedFiles map[string]string, result *Result) bool {
	ok := true
	for _, path := range sortedKeys(modifiedFiles) {
		language := project.ExtensionOf(path)
		extractor, has := importExtractors[language]
		if !has {
			continue
		}
		for _, imp := range extractImports(extractor, modifiedFiles[path]) {
			if isFirstParty(imp, modifiedFiles) || isStdlib(language, imp) || isManifested(v.Manifests[language], imp) {
				continue
			}
			ok = false
			result.Issues = append(result.Issues, fmt.Sprintf("%s: import %q is not declared in any manifest", path, imp))
		}
	}
	return ok
}

func extractImports(re *regexp.Regexp, content string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		for _, g := range m[1:] {
			if g != "" {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

func isStdlib(language, imp string) bool {
	set, ok := stdlibModules[language]
	if !ok {
		return false
	}
	return set[imp]
}

func isManifested(known []string, imp string) bool {
	root := strings.SplitN(imp, "/", 2)[0]
	for _, k := range known {
		if k == imp || k == root || strings.HasPrefix(imp, k+"/") {
			return true
		}
	}
	return false
}

// isFirstParty reports whether imp plausibly refers to one of the files
// already in this change set, by basename match.
func isFirstParty(imp string, modifiedFiles map[string]string) bool {
	base := filepath.Base(imp)
	for path := range modifiedFiles {
		if strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) == base {
			return true
		}
	}
	return false
}

// checkSandboxSyntax attempts a parse of every modified source file,
// failing fast on the first unparseable one, per spec.md §4.13.
func (v *Validator) checkSandboxSyntax(modifiedFiles map[string]string, result *Result) bool {
	if v.Sandbox == nil {
		return true
	}
	for _, path := range sortedKeys(modifiedFiles) {
		language := project.ExtensionOf(path)
		if !v.Sandbox.SupportsLanguage(language) {
			continue
		}
		check := v.Sandbox.Check(language, modifiedFiles[path])
		if !check.Valid {
			for _, e := range check.Errors {
				result.Issues = append(result.Issues, fmt.Sprintf("%s: %s", path, e))
			}
			return false
		}
	}
	return true
}

var (
	goDeclRE   = regexp.MustCompile(`(?m)^\s*(?:func|type|var|const)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	goImportRE = regexp.MustCompile(`(?m)^\s*(\w+)\.(\w+)`)
)

// checkIntegration performs the simple AST-name-set cross-file check of
// spec.md §4.13's Integration bullet, restricted to Go files: a
// first-party package-qualified reference (pkg.Symbol) must name a symbol
// declared somewhere in the corresponding modified file. Only references
// at the start of a line (after indentation) are checked; references later
// in a line, such as in an assignment or call argument, are not.
func (v *Validator) checkIntegration(modifiedFiles map[string]string, result *Result) bool {
	declared := make(map[string]map[string]bool) // package-name-guess -> symbol set
	for path, content := range modifiedFiles {
		if project.ExtensionOf(path) != "go" {
			continue
		}
		pkg := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		set := declared[pkg]
		if set == nil {
			set = make(map[string]bool)
			declared[pkg] = set
		}
		for _, m := range goDeclRE.FindAllStringSubmatch(content, -1) {
			set[m[1]] = true
		}
	}

	ok := true
	for _, path := range sortedKeys(modifiedFiles) {
		if project.ExtensionOf(path) != "go" {
			continue
		}
		for _, m := range goImportRE.FindAllStringSubmatch(modifiedFiles[path], -1) {
			pkg, symbol := m[1], m[2]
			set, known := declared[pkg]
			if !known {
				continue // not a first-party package reference we can check
			}
			if !set[symbol] {
				ok = false
				result.Issues = append(result.Issues, fmt.Sprintf("%s: references undefined %s.%s", path, pkg, symbol))
			}
		}
	}
	return ok
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
