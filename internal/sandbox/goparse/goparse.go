// Package goparse checks Go, JSON, and YAML source for syntax errors using
// the standard library parser and yaml.v3, grounded on the teacher's
// SyntaxValidator (core.validateGoSyntax/validateJSONSyntax/validateYAMLSyntax).
package goparse

import (
	"encoding/json"
	"go/parser"
	"go/token"

	"gopkg.in/yaml.v3"

	"codenerd/internal/sandbox"
)

// Checker implements sandbox.SyntaxChecker for "go", "json", and "yaml".
type Checker struct{}

func New() Checker { return Checker{} }

func (Checker) SupportsLanguage(language string) bool {
	switch language {
	case "go", "json", "yaml", "yml":
		return true
	default:
		return false
	}
}

func (Checker) Check(language, source string) sandbox.CheckResult {
	switch language {
	case "go":
		return checkGo(source)
	case "json":
		return checkJSON(source)
	case "yaml", "yml":
		return checkYAML(source)
	default:
		return sandbox.CheckResult{Valid: true}
	}
}

func checkGo(source string) sandbox.CheckResult {
	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "generated.go", source, parser.AllErrors)
	if err != nil {
		return sandbox.CheckResult{Valid: false, Errors: []string{err.Error()}}
	}
	return sandbox.CheckResult{Valid: true}
}

func checkJSON(source string) sandbox.CheckResult {
	var v any
	if err := json.Unmarshal([]byte(source), &v); err != nil {
		return sandbox.CheckResult{Valid: false, Errors: []string{err.Error()}}
	}
	return sandbox.CheckResult{Valid: true}
}

func checkYAML(source string) sandbox.CheckResult {
	var v any
	if err := yaml.Unmarshal([]byte(source), &v); err != nil {
		return sandbox.CheckResult{Valid: false, Errors: []string{err.Error()}}
	}
	return sandbox.CheckResult{Valid: true}
}
