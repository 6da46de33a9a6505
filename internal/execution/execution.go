// Package execution implements the Step Executor (spec.md §4.11): it walks
// a validated Plan in order, retrieves per-step knowledge context,
// delegates file content generation to a ModifierAgent, sanitizes and
// syntax-checks the result, and aborts on the first hard failure. Patch
// application is grounded on the teacher's internal/diff package, which
// already wraps github.com/sergi/go-diff/diffmatchpatch for this module's
// diff needs.
package execution

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"codenerd/internal/knowledge"
	"codenerd/internal/logging"
	"codenerd/internal/planning"
	"codenerd/internal/project"
	"codenerd/internal/sandbox"
)

var log = logging.L("execution")

// ModifierResult is what a ModifierAgent returns for one step: either a
// full new file body (Content) or a unified-diff-style patch against the
// existing content (Patch). Exactly one should be non-empty.
type ModifierResult struct {
	Content string
	Patch   string
}

// ModifierAgent generates or patches one file's content for a plan step.
type ModifierAgent interface {
	Modify(ctx context.Context, step planning.Step, existingContent string, retrievedContext string) (ModifierResult, error)
}

// Result is the Executor's output, per spec.md §4.11.
type Result struct {
	ModifiedFiles map[string]string
	FilesToDelete []string
	// FallbackFiles lists paths where a minimal template was substituted
	// after a generated body failed syntax checking twice.
	FallbackFiles []string

	FailedStep *planning.Step
	Err        error
}

// Executor runs a Plan's steps in order.
type Executor struct {
	Retriever *knowledge.Retriever
	Sandbox   sandbox.SyntaxChecker
	// RetrievalK bounds the per-step knowledge search width; defaults to 3.
	RetrievalK int
}

// New builds an Executor.
func New(retriever *knowledge.Retriever, checker sandbox.SyntaxChecker) *Executor {
	return &Executor{Retriever: retriever, Sandbox: checker, RetrievalK: 3}
}

// Run executes plan's steps against fs in order, stopping at the first
// hard failure (spec.md §4.11).
func (e *Executor) Run(ctx context.Context, plan planning.Plan, fs project.FileSystem, modifier ModifierAgent) Result {
	result := Result{ModifiedFiles: make(map[string]string)}
	k := e.RetrievalK
	if k <= 0 {
		k = 3
	}

	for _, step := range plan.Steps {
		if step.Action == planning.ActionDelete {
			result.FilesToDelete = append(result.FilesToDelete, step.FilePath)
			continue
		}

		retrieved := ""
		if e.Retriever != nil {
			query := strings.TrimSpace(step.What + " " + step.How)
			retrieved = e.Retriever.RetrieveContext(ctx, query, k)
		}

		existing := ""
		if content, err := fs.ReadFile(step.FilePath); err == nil {
			existing = string(content)
		}

		raw, err := modifier.Modify(ctx, step, existing, retrieved)
		if err != nil {
			s := step
			log.Errorw("modifier failed, aborting execution", "file", step.FilePath, "error", err)
			return Result{
				ModifiedFiles: result.ModifiedFiles,
				FilesToDelete: result.FilesToDelete,
				FallbackFiles: result.FallbackFiles,
				FailedStep:    &s,
				Err:           fmt.Errorf("execution: step %s: %w", step.FilePath, err),
			}
		}

		content, err := applyModifierResult(existing, raw)
		if err != nil {
			s := step
			log.Errorw("failed to apply modifier output, aborting execution", "file", step.FilePath, "error", err)
			return Result{
				ModifiedFiles: result.ModifiedFiles,
				FilesToDelete: result.FilesToDelete,
				FallbackFiles: result.FallbackFiles,
				FailedStep:    &s,
				Err:           fmt.Errorf("execution: apply patch for %s: %w", step.FilePath, err),
			}
		}

		content, fellBack := e.sanitizeAndCheck(step.FilePath, content)
		if fellBack {
			result.FallbackFiles = append(result.FallbackFiles, step.FilePath)
		}

		result.ModifiedFiles[step.FilePath] = content
	}

	return result
}

// applyModifierResult returns raw.Content verbatim, or applies raw.Patch
// over existing via diffmatchpatch when Content is empty and Patch is not.
func applyModifierResult(existing string, raw ModifierResult) (string, error) {
	if raw.Patch == "" {
		return raw.Content, nil
	}
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(raw.Patch)
	if err != nil {
		return "", fmt.Errorf("parse patch: %w", err)
	}
	patched, applied := dmp.PatchApply(patches, existing)
	for _, ok := range applied {
		if !ok {
			return "", fmt.Errorf("patch did not apply cleanly")
		}
	}
	return patched, nil
}

// sanitizeAndCheck strips markdown fences from content, attempts a syntax
// check, runs a bounded auto-fix pass on failure, and substitutes a
// minimal template if the auto-fixed version still fails to parse. Returns
// the final content and whether the fallback template was used.
func (e *Executor) sanitizeAndCheck(filePath, content string) (string, bool) {
	content = sanitizeGeneratedCode(content)
	language := project.ExtensionOf(filePath)

	if e.Sandbox == nil || !e.Sandbox.SupportsLanguage(language) {
		return content, false
	}

	if result := e.Sandbox.Check(language, content); result.Valid {
		return content, false
	}

	fixed := autoFix(content, language)
	if result := e.Sandbox.Check(language, fixed); result.Valid {
		return fixed, false
	}

	log.Debugw("generated content failed syntax check twice, substituting fallback template", "file", filePath, "language", language)
	return minimalTemplate(language), true
}

// sanitizeGeneratedCode strips a leading/trailing markdown code fence and
// an optional language-name prefix line, per spec.md §4.11's code
// sanitation step. Content without a fence is returned unchanged.
func sanitizeGeneratedCode(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// NormalizeWhitespace exposes autoFix's pass (tabs to spaces, plus the
// python missing-colon repair; indentation levels are not repaired) for
// reuse outside the executor, e.g. by the self-healing controller's
// auto_fix_syntax strategy (spec.md §4.14).
func NormalizeWhitespace(content, language string) string {
	return autoFix(content, language)
}

// autoFix runs a single bounded normalization pass: tabs to spaces, and for
// python, a naive missing-colon repair on block-opening statements. Per
// spec.md §4.11 this runs at most once per step.
func autoFix(content, language string) string {
	fixed := strings.ReplaceAll(content, "\t", "    ")

	if language == "py" || language == "python" {
		var lines []string
		for _, line := range strings.Split(fixed, "\n") {
			trimmedRight := strings.TrimRight(line, " ")
			stripped := strings.TrimSpace(trimmedRight)
			needsColon := false
			for _, kw := range []string{"if ", "elif ", "else", "for ", "while ", "def ", "class ", "try", "except", "finally"} {
				if strings.HasPrefix(stripped, kw) {
					needsColon = true
					break
				}
			}
			if needsColon && stripped != "" && !strings.HasSuffix(stripped, ":") {
				trimmedRight += ":"
			}
			lines = append(lines, trimmedRight)
		}
		fixed = strings.Join(lines, "\n")
	}

	return fixed
}

// minimalTemplate returns a minimal syntactically-valid body for language,
// substituted when generated content cannot be repaired, per spec.md
// §4.11's fallback step.
func minimalTemplate(language string) string {
	switch language {
	case "go":
		return "package main\n"
	case "py", "python":
		return "pass\n"
	case "json":
		return "{}\n"
	case "yaml", "yml":
		return "{}\n"
	case "js", "javascript":
		return "export {};\n"
	case "ts", "typescript":
		return "export {};\n"
	default:
		return ""
	}
}
