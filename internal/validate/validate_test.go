package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunValidationHooksOrdersByPriorityDescending(t *testing.T) {
	r := NewRegistry()
	var order []string
	mk := func(id string, priority int) Hook {
		return Hook{HookID: id, HookType: "syntax", Priority: priority, Validator: func(any) (bool, string) {
			order = append(order, id)
			return true, ""
		}}
	}
	r.Register(mk("low", 1))
	r.Register(mk("high", 10))
	r.Register(mk("mid", 5))

	results := r.RunValidationHooks("data")
	assert.Equal(t, []string{"high", "mid", "low"}, order)
	assert.True(t, AllPass(results))
}

func TestRunValidationHooksFiltersByType(t *testing.T) {
	r := NewRegistry()
	r.Register(Hook{HookID: "syntax-1", HookType: "syntax", Priority: 1, Validator: func(any) (bool, string) { return true, "" }})
	r.Register(Hook{HookID: "budget-1", HookType: "budget", Priority: 1, Validator: func(any) (bool, string) { return true, "" }})

	results := r.RunValidationHooks("data", "budget")
	assert.Len(t, results, 1)
	_, ok := results["budget-1"]
	assert.True(t, ok)
}

func TestAllPassFalseWhenAnyHookFails(t *testing.T) {
	results := map[string]Result{
		"a": {Outcome: true},
		"b": {Outcome: false, Feedback: "nope"},
	}
	assert.False(t, AllPass(results))
}

func TestSyntaxHookReportsParseError(t *testing.T) {
	h := NewSyntaxHook("go-syntax", "go", 20, func(source string) error {
		if source == "bad" {
			return errors.New("unexpected token")
		}
		return nil
	})

	ok, feedback := h.Validator("bad")
	assert.False(t, ok)
	assert.Contains(t, feedback, "unexpected token")

	ok, _ = h.Validator("good")
	assert.True(t, ok)
}

func TestCostBoundHookRejectsOverBudget(t *testing.T) {
	h := NewCostBoundHook("cost", 1, 1.0)
	ok, _ := h.Validator(2.0)
	assert.False(t, ok)
	ok, _ = h.Validator(0.5)
	assert.True(t, ok)
}
