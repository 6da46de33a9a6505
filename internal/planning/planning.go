// Package planning implements the Plan Generator (spec.md §4.10): it turns
// a task description plus retrieved context into a validated, file-level
// modification plan by prompting the highest-tier model and parsing its
// JSON response. The JSON-extraction strategy (fenced code block, then a
// raw bracket slice) is grounded on the teacher's extractJSON/extractCodeBlock
// helpers in internal/autopoiesis/toolgen.go.
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"codenerd/internal/architecture"
	"codenerd/internal/budget"
	"codenerd/internal/llm"
	"codenerd/internal/logging"
	"codenerd/internal/project"
)

var log = logging.L("planning")

// Action is one of the three file actions a plan step may request.
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Step is one file-level unit of work in a Plan.
type Step struct {
	FilePath          string
	Action            Action
	What              string
	How               string
	ArchitecturalNote string
}

// Warning records a non-fatal plan adjustment, per spec.md §4.10 step 5.
type Warning struct {
	Message string
}

// Plan is the Generator's validated output.
type Plan struct {
	Steps    []Step
	Warnings []Warning
}

// Request is the Generator's input, per spec.md §4.10.
type Request struct {
	Task             string
	RetrievedContext string
	ProjectPath      string
	Language         string
}

// excludedDirs are skipped when enumerating project files, per spec.md
// §4.10 step 1.
var excludedDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
}

// Generator produces a Plan from a Request.
type Generator struct {
	LLM     llm.ModelRegistry
	Project project.FileSystem
}

// New builds a Generator.
func New(modelRegistry llm.ModelRegistry, fs project.FileSystem) *Generator {
	return &Generator{LLM: modelRegistry, Project: fs}
}

// Generate runs the full spec.md §4.10 algorithm: enumerate files, prompt
// the highest-tier model, parse and validate its JSON plan, resolve
// missing files, and apply architectural validation.
func (g *Generator) Generate(ctx context.Context, req Request, archCtx architecture.Context) (Plan, error) {
	files, err := g.listProjectFiles(".")
	if err != nil {
		return Plan{}, fmt.Errorf("planning: enumerate project files: %w", err)
	}

	prompt := buildPrompt(req, files)

	handle, err := g.LLM.Resolve(budget.TierHighest)
	if err != nil {
		return Plan{}, fmt.Errorf("planning: resolve planner model: %w", err)
	}

	reply, _, err := handle.Respond(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return Plan{}, fmt.Errorf("planning: planner model call: %w", err)
	}

	rawSteps, err := parsePlanJSON(reply.Content)
	if err != nil {
		return Plan{}, fmt.Errorf("planning: parse plan JSON: %w", err)
	}

	plan := Plan{}
	for _, rs := range rawSteps {
		step, warn, err := g.validateStep(rs, files)
		if err != nil {
			return Plan{}, fmt.Errorf("planning: invalid step: %w", err)
		}
		if warn != nil {
			plan.Warnings = append(plan.Warnings, *warn)
		}

		newPath, note, ok := architecture.ValidateStepPlacement(step.FilePath, step.What, archCtx)
		if !ok {
			step.FilePath = newPath
			step.ArchitecturalNote = note
		}

		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}

// rawStep is the JSON shape a planner response must parse into, per
// spec.md §4.10 step 3.
type rawStep struct {
	File   string `json:"file"`
	Action string `json:"action"`
	What   string `json:"what"`
	How    string `json:"how"`
}

// validateStep checks rawStep's four required string fields and its
// action enum (step 4), then resolves non-create file paths against the
// known file list (step 5).
func (g *Generator) validateStep(rs rawStep, knownFiles []string) (Step, *Warning, error) {
	if rs.File == "" || rs.Action == "" || rs.What == "" || rs.How == "" {
		return Step{}, nil, fmt.Errorf("step missing a required field: %+v", rs)
	}

	action := Action(rs.Action)
	switch action {
	case ActionCreate, ActionModify, ActionDelete:
	default:
		return Step{}, nil, fmt.Errorf("step %q has invalid action %q", rs.File, rs.Action)
	}

	step := Step{FilePath: rs.File, Action: action, What: rs.What, How: rs.How}

	if action == ActionCreate {
		return step, nil, nil
	}

	for _, f := range knownFiles {
		if f == rs.File {
			return step, nil, nil
		}
	}

	// Not found verbatim: try a case-insensitive basename match.
	wantBase := strings.ToLower(filepath.Base(rs.File))
	for _, f := range knownFiles {
		if strings.ToLower(filepath.Base(f)) == wantBase {
			step.FilePath = f
			return step, nil, nil
		}
	}

	// Miss: demote to create and warn.
	step.Action = ActionCreate
	warn := &Warning{Message: fmt.Sprintf("file %q not found for %s; demoted to create", rs.File, rs.Action)}
	log.Debugw("demoted missing file to create", "file", rs.File, "original_action", rs.Action)
	return step, warn, nil
}

// listProjectFiles enumerates files under root, excluding .git,
// __pycache__, node_modules, and any hidden (dot-prefixed) directory, per
// spec.md §4.10 step 1.
func (g *Generator) listProjectFiles(root string) ([]string, error) {
	all, err := g.Project.ListFiles(root)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, f := range all {
		if isExcluded(f) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func isExcluded(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if excludedDirs[part] {
			return true
		}
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// buildPrompt assembles the planning prompt, per spec.md §4.10 step 2.
func buildPrompt(req Request, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are planning a set of file changes for project at %q (language: %s).\n\n", req.ProjectPath, req.Language)
	b.WriteString("Existing files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\nUser request:\n")
	b.WriteString(req.Task)
	b.WriteString("\n\n")
	if req.RetrievedContext != "" {
		b.WriteString("Retrieved context:\n")
		b.WriteString(req.RetrievedContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Rules:\n")
	b.WriteString("- Respect existing module boundaries.\n")
	b.WriteString("- Place new files according to their architectural role.\n")
	b.WriteString("- Generate code matching existing templates and conventions.\n\n")
	b.WriteString(`Return a JSON array of objects: [{"file": "...", "action": "create|modify|delete", "what": "...", "how": "..."}]`)
	return b.String()
}

// parsePlanJSON extracts a JSON array of rawSteps from text, trying a
// fenced code block first, then a raw "["..."]" bracket slice, grounded on
// the teacher's extractJSON/extractCodeBlock pair.
func parsePlanJSON(text string) ([]rawStep, error) {
	candidates := []string{extractFencedJSON(text), extractBracketSlice(text)}

	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var steps []rawStep
		err := json.Unmarshal([]byte(candidate), &steps)
		if err == nil {
			return steps, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON array found in planner response")
	}
	return nil, lastErr
}

func extractFencedJSON(text string) string {
	for _, fence := range []string{"```json\n", "```json\r\n", "```\n"} {
		idx := strings.Index(text, fence)
		if idx == -1 {
			continue
		}
		start := idx + len(fence)
		end := strings.Index(text[start:], "```")
		if end == -1 {
			continue
		}
		return strings.TrimSpace(text[start : start+end])
	}
	return ""
}

func extractBracketSlice(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
