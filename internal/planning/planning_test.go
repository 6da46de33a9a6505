package planning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/architecture"
	"codenerd/internal/budget"
	"codenerd/internal/llm"
	"codenerd/internal/llm/fake"
	"codenerd/internal/project"
)

func newGenerator(t *testing.T, response string) (*Generator, *project.MemFS) {
	t.Helper()
	fs := project.NewMemFS()
	require.NoError(t, fs.WriteFile("main.go", []byte("package main\n")))
	require.NoError(t, fs.WriteFile("node_modules/dep/index.js", []byte("ignored")))

	handle := fake.New("planner-model", response)
	registry := llm.NewStaticRegistry(map[budget.ModelTier]llm.ModelHandle{budget.TierHighest: handle})
	return New(registry, fs), fs
}

func TestGenerateParsesFencedJSONPlan(t *testing.T) {
	response := "Here is the plan:\n```json\n" +
		`[{"file": "main.go", "action": "modify", "what": "add logging", "how": "wrap handler"}]` +
		"\n```\n"
	gen, _ := newGenerator(t, response)

	plan, err := gen.Generate(context.Background(), Request{Task: "add logging", ProjectPath: "."}, architecture.FallbackContext())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "main.go", plan.Steps[0].FilePath)
	assert.Equal(t, ActionModify, plan.Steps[0].Action)
	assert.Empty(t, plan.Warnings)
}

func TestGenerateParsesRawBracketPlan(t *testing.T) {
	response := `[{"file": "main.go", "action": "create", "what": "new entrypoint", "how": "write main"}]`
	gen, _ := newGenerator(t, response)

	plan, err := gen.Generate(context.Background(), Request{Task: "create entrypoint"}, architecture.FallbackContext())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, ActionCreate, plan.Steps[0].Action)
}

func TestGenerateDemotesMissingModifyToCreate(t *testing.T) {
	response := `[{"file": "missing.go", "action": "modify", "what": "fix bug", "how": "patch logic"}]`
	gen, _ := newGenerator(t, response)

	plan, err := gen.Generate(context.Background(), Request{Task: "fix bug"}, architecture.FallbackContext())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, ActionCreate, plan.Steps[0].Action)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0].Message, "missing.go")
}

func TestGenerateResolvesCaseInsensitiveBasename(t *testing.T) {
	response := `[{"file": "MAIN.GO", "action": "modify", "what": "tweak", "how": "edit"}]`
	gen, _ := newGenerator(t, response)

	plan, err := gen.Generate(context.Background(), Request{Task: "tweak"}, architecture.FallbackContext())
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "main.go", plan.Steps[0].FilePath)
	assert.Empty(t, plan.Warnings)
}

func TestGenerateExcludesNodeModulesFromPrompt(t *testing.T) {
	response := `[{"file": "frontend/src/components/Login.jsx", "action": "create", "what": "add login component", "how": "write jsx"}]`
	gen, fs := newGenerator(t, response)

	archCtx := architecture.Analyze("build a React frontend with a Flask backend", "", nil)
	plan, err := gen.Generate(context.Background(), Request{Task: "add login component"}, archCtx)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "frontend/src/components/Login.jsx", plan.Steps[0].FilePath)
	assert.True(t, fs.Exists("node_modules/dep/index.js"))

	h, err := gen.LLM.Resolve(budget.TierHighest)
	require.NoError(t, err)
	prompt := h.(*fake.Handle).Calls[0].Messages[0].Content
	assert.Contains(t, prompt, "- main.go")
	assert.NotContains(t, prompt, "node_modules")
}

func TestGenerateRejectsInvalidAction(t *testing.T) {
	response := `[{"file": "main.go", "action": "rewrite", "what": "x", "how": "y"}]`
	gen, _ := newGenerator(t, response)

	_, err := gen.Generate(context.Background(), Request{Task: "x"}, architecture.FallbackContext())
	assert.Error(t, err)
}

func TestGenerateRejectsMissingField(t *testing.T) {
	response := `[{"file": "main.go", "action": "create", "what": "", "how": "y"}]`
	gen, _ := newGenerator(t, response)

	_, err := gen.Generate(context.Background(), Request{Task: "x"}, architecture.FallbackContext())
	assert.Error(t, err)
}

func TestGenerateErrorsOnUnparseableResponse(t *testing.T) {
	gen, _ := newGenerator(t, "not json at all")

	_, err := gen.Generate(context.Background(), Request{Task: "x"}, architecture.FallbackContext())
	assert.Error(t, err)
}
