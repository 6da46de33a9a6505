package healing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/architecture"
	"codenerd/internal/budget"
	"codenerd/internal/llm"
	"codenerd/internal/llm/fake"
	"codenerd/internal/planning"
	"codenerd/internal/project"
)

func TestAnalyzeFailureNoIssuesIsNoAction(t *testing.T) {
	a := AnalyzeFailure(nil)
	assert.Equal(t, StrategyNoAction, a.Strategy)
	assert.True(t, a.AutoRecoverable)
}

func TestAnalyzeFailureSyntaxPattern(t *testing.T) {
	a := AnalyzeFailure([]string{"main.go: syntax error near line 3"})
	assert.Equal(t, StrategyAutoFixSyntax, a.Strategy)
	assert.True(t, a.AutoRecoverable)
	assert.Contains(t, a.Patterns, "syntax error")
}

func TestAnalyzeFailureTestLogicPattern(t *testing.T) {
	a := AnalyzeFailure([]string{"test failed: expected 3 got 4"})
	assert.Equal(t, StrategyFixTestLogic, a.Strategy)
	assert.True(t, a.AutoRecoverable)
}

func TestAnalyzeFailurePerformancePattern(t *testing.T) {
	a := AnalyzeFailure([]string{"request timeout under load"})
	assert.Equal(t, StrategyReplanPerformance, a.Strategy)
	assert.False(t, a.AutoRecoverable)
}

func TestAnalyzeFailureSecurityPattern(t *testing.T) {
	a := AnalyzeFailure([]string{"possible sql injection in query builder"})
	assert.Equal(t, StrategyHumanEscalation, a.Strategy)
	assert.False(t, a.AutoRecoverable)
}

func TestAnalyzeFailureUnknownIsGenericRetry(t *testing.T) {
	a := AnalyzeFailure([]string{"something odd happened"})
	assert.Equal(t, StrategyGenericRetry, a.Strategy)
	assert.False(t, a.AutoRecoverable)
}

func TestExecuteAutoFixSyntaxNormalizesWhitespace(t *testing.T) {
	c := New(nil)
	result := c.Execute(context.Background(), Analysis{Strategy: StrategyAutoFixSyntax}, nil,
		map[string]string{"a.py": "if x\n\tprint(x)"}, planning.Request{}, architecture.Context{}, "")

	assert.Contains(t, result.ModifiedFiles["a.py"], "if x:")
}

func TestExecuteFixTestLogicFlagsTestFiles(t *testing.T) {
	c := New(nil)
	result := c.Execute(context.Background(), Analysis{Strategy: StrategyFixTestLogic}, []string{"assertion failed"},
		map[string]string{"foo_test.go": "package foo\n"}, planning.Request{}, architecture.Context{}, "")

	require.Len(t, result.Notes, 1)
	assert.Contains(t, result.Notes[0], "foo_test.go")
}

func TestExecuteHumanEscalationAttachesBlock(t *testing.T) {
	c := New(nil)
	result := c.Execute(context.Background(), Analysis{Strategy: StrategyHumanEscalation}, []string{"security: privilege escalation risk"},
		map[string]string{"a.go": "package a\n"}, planning.Request{}, architecture.Context{}, "")

	assert.Contains(t, result.Escalation, "privilege escalation")
	assert.Equal(t, map[string]string{"a.go": "package a\n"}, result.ModifiedFiles)
}

func TestExecuteNoActionPassesThrough(t *testing.T) {
	c := New(nil)
	files := map[string]string{"a.go": "package a\n"}
	result := c.Execute(context.Background(), Analysis{Strategy: StrategyNoAction}, nil, files, planning.Request{}, architecture.Context{}, "")
	assert.Equal(t, files, result.ModifiedFiles)
}

func TestExecuteGenericRetryReinvokesPlanner(t *testing.T) {
	fs := project.NewMemFS()
	handle := fake.New("planner-model", `[{"file": "a.go", "action": "modify", "what": "fix bug", "how": "patch it"}]`)
	registry := llm.NewStaticRegistry(map[budget.ModelTier]llm.ModelHandle{budget.TierHighest: handle})
	planner := planning.New(registry, fs)
	c := New(planner)

	req := planning.Request{Task: "add a widget", ProjectPath: "."}
	result := c.Execute(context.Background(), Analysis{Strategy: StrategyGenericRetry}, []string{"undefined name: widget"},
		nil, req, architecture.Context{}, "")

	require.NotNil(t, result.NewPlan)
	require.Len(t, result.NewPlan.Steps, 1)
	assert.Len(t, handle.Calls, 1)
	assert.Contains(t, handle.Calls[0].Messages[0].Content, "undefined name: widget")
}

func TestExecuteReplanPerformanceIncludesPerformanceContext(t *testing.T) {
	fs := project.NewMemFS()
	handle := fake.New("planner-model", `[{"file": "a.go", "action": "modify", "what": "optimize", "how": "cache result"}]`)
	registry := llm.NewStaticRegistry(map[budget.ModelTier]llm.ModelHandle{budget.TierHighest: handle})
	planner := planning.New(registry, fs)
	c := New(planner)

	req := planning.Request{Task: "speed up the query", ProjectPath: "."}
	result := c.Execute(context.Background(), Analysis{Strategy: StrategyReplanPerformance}, []string{"query timeout"},
		nil, req, architecture.Context{}, "use an index on user_id")

	require.NotNil(t, result.NewPlan)
	assert.Contains(t, handle.Calls[0].Messages[0].Content, "use an index on user_id")
}

func TestExecuteReplanWithoutPlannerIsNoop(t *testing.T) {
	c := New(nil)
	result := c.Execute(context.Background(), Analysis{Strategy: StrategyGenericRetry}, []string{"something broke"},
		nil, planning.Request{}, architecture.Context{}, "")

	assert.Nil(t, result.NewPlan)
}
