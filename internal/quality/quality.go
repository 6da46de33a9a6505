// Package quality implements the Quality Validator (spec.md §4.12): it
// syntax-checks every modified file, aggregates lint findings from a
// static-analysis collaborator, and optionally runs a bounded LLM code
// review. Grounded on the teacher's validator/quality-gate shape in
// internal/core/validator_registry.go (named, independently-run checks
// aggregated into one pass/fail outcome) and internal/autopoiesis/quality.go
// (heuristic + optional LLM-enhanced assessment).
package quality

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codenerd/internal/budget"
	"codenerd/internal/llm"
	"codenerd/internal/logging"
	"codenerd/internal/project"
	"codenerd/internal/sandbox"
)

var log = logging.L("quality")

// maxReviewFiles and maxReviewChars bound the LLM code-review prompt, per
// spec.md §4.12 "bounded code snippets (≤ N files, ≤ N chars each)".
const (
	maxReviewFiles = 8
	maxReviewChars = 4000
)

// LintIssue is one finding from a static-analysis collaborator.
type LintIssue struct {
	File    string
	Message string
}

// StaticAnalyzer is the read-only lint collaborator: given a file's path
// and content, it returns any findings. Implementations may query a
// chunk-metadata table, run an external linter, or anything else; the
// validator only depends on this contract.
type StaticAnalyzer interface {
	Lint(path, content string) []LintIssue
}

// Result is the shape produced by both the Quality Validator and the
// Operational Validator (spec.md §4.12/§4.13).
type Result struct {
	Passed      bool
	Issues      []string
	GateResults map[string]bool
	Summary     map[string]string
}

// Validator runs the quality gates of spec.md §4.12.
type Validator struct {
	Sandbox  sandbox.SyntaxChecker
	Linter   StaticAnalyzer
	Reviewer llm.ModelRegistry
	// ReviewTier selects which registry tier performs the optional review.
	ReviewTier budget.ModelTier
}

// New builds a Validator. linter and reviewer may be nil to skip those
// gates entirely.
func New(checker sandbox.SyntaxChecker, linter StaticAnalyzer, reviewer llm.ModelRegistry) *Validator {
	return &Validator{Sandbox: checker, Linter: linter, Reviewer: reviewer, ReviewTier: budget.TierMiddle}
}

// Validate checks every file in modifiedFiles against the syntax, lint,
// and (optionally) LLM-review gates, and aggregates the outcome.
func (v *Validator) Validate(ctx context.Context, objective string, modifiedFiles map[string]string) Result {
	result := Result{
		GateResults: make(map[string]bool),
		Summary:     make(map[string]string),
	}

	syntaxOK := v.checkSyntax(modifiedFiles, &result)
	result.GateResults["syntax"] = syntaxOK

	lintOK := v.checkLint(modifiedFiles, &result)
	result.GateResults["lint"] = lintOK

	reviewOK := true
	if v.Reviewer != nil {
		reviewOK = v.checkReview(ctx, objective, modifiedFiles, &result)
	}
	result.GateResults["review"] = reviewOK

	result.Passed = syntaxOK && lintOK && reviewOK
	result.Summary["files_checked"] = fmt.Sprintf("%d", len(modifiedFiles))
	result.Summary["issues_found"] = fmt.Sprintf("%d", len(result.Issues))

	return result
}

// checkSyntax runs a syntax hook (C5 collaborator contract: a SyntaxChecker)
// over every modified file.
func (v *Validator) checkSyntax(modifiedFiles map[string]string, result *Result) bool {
	if v.Sandbox == nil {
		return true
	}
	ok := true
	for _, path := range sortedKeys(modifiedFiles) {
		content := modifiedFiles[path]
		language := project.ExtensionOf(path)
		if !v.Sandbox.SupportsLanguage(language) {
			continue
		}
		check := v.Sandbox.Check(language, content)
		if !check.Valid {
			ok = false
			for _, e := range check.Errors {
				result.Issues = append(result.Issues, fmt.Sprintf("%s: %s", path, e))
			}
		}
	}
	return ok
}

// checkLint aggregates findings from the static-analysis collaborator.
func (v *Validator) checkLint(modifiedFiles map[string]string, result *Result) bool {
	if v.Linter == nil {
		return true
	}
	ok := true
	for _, path := range sortedKeys(modifiedFiles) {
		for _, issue := range v.Linter.Lint(path, modifiedFiles[path]) {
			ok = false
			result.Issues = append(result.Issues, fmt.Sprintf("%s: %s", issue.File, issue.Message))
		}
	}
	return ok
}

// checkReview runs a bounded LLM code review, per spec.md §4.12: the
// prompt includes the objective and at most maxReviewFiles snippets,
// each truncated to maxReviewChars. A review failure (model error or
// unparseable response) does not fail the gate — it is advisory only,
// matching the teacher's "LLM enhancement is additive, heuristic result
// stands on failure" pattern in autopoiesis/quality.go.
func (v *Validator) checkReview(ctx context.Context, objective string, modifiedFiles map[string]string, result *Result) bool {
	handle, err := v.Reviewer.Resolve(v.ReviewTier)
	if err != nil {
		log.Debugw("review gate: resolve model failed, skipping", "error", err)
		return true
	}

	paths := sortedKeys(modifiedFiles)
	if len(paths) > maxReviewFiles {
		paths = paths[:maxReviewFiles]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Review these changes for objective: %s\n\n", objective)
	for _, path := range paths {
		snippet := modifiedFiles[path]
		if len(snippet) > maxReviewChars {
			snippet = snippet[:maxReviewChars]
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", path, snippet)
	}
	b.WriteString(`Reply with "APPROVE" if the changes look correct, or a line starting with "ISSUE:" per problem found.`)

	reply, _, err := handle.Respond(ctx, []llm.Message{{Role: "user", Content: b.String()}})
	if err != nil {
		log.Debugw("review gate: model call failed, treating as advisory pass", "error", err)
		return true
	}

	ok := true
	for _, line := range strings.Split(reply.Content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ISSUE:") {
			ok = false
			result.Issues = append(result.Issues, strings.TrimSpace(strings.TrimPrefix(line, "ISSUE:")))
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
