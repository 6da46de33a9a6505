// Package validate implements the Validation Hook Registry (spec component
// C5): a named, prioritized, typed set of validators shared by every
// Reflective Operator.
package validate

import "sort"

// HookFunc checks data and returns whether it passed plus human-readable
// feedback.
type HookFunc func(data any) (ok bool, feedback string)

// Hook is a named, typed, prioritized validator.
type Hook struct {
	HookID    string
	HookType  string // syntax | schema | relevance | budget | ...
	Priority  int    // larger runs earlier
	Validator HookFunc
}

// Result is one hook's outcome.
type Result struct {
	Outcome  bool
	Feedback string
}

// Registry holds a per-operator set of hooks keyed by HookID.
type Registry struct {
	hooks map[string]Hook
	order []string // insertion order, for stable iteration when priorities tie
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]Hook)}
}

// Register adds or replaces a hook by HookID.
func (r *Registry) Register(h Hook) {
	if _, exists := r.hooks[h.HookID]; !exists {
		r.order = append(r.order, h.HookID)
	}
	r.hooks[h.HookID] = h
}

// RunValidationHooks filters by type tag (if any types are given), sorts by
// priority descending, runs each validator, and returns hook id -> Result.
func (r *Registry) RunValidationHooks(data any, types ...string) map[string]Result {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	candidates := make([]Hook, 0, len(r.hooks))
	for _, id := range r.order {
		h := r.hooks[id]
		if len(typeSet) == 0 || typeSet[h.HookType] {
			candidates = append(candidates, h)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	results := make(map[string]Result, len(candidates))
	for _, h := range candidates {
		ok, feedback := h.Validator(data)
		results[h.HookID] = Result{Outcome: ok, Feedback: feedback}
	}
	return results
}

// AllPass reports whether every result in the map passed.
func AllPass(results map[string]Result) bool {
	for _, r := range results {
		if !r.Outcome {
			return false
		}
	}
	return true
}

// NewSyntaxHook builds a hook that parses data (expected to be a source
// string) with a language-specific parse function.
func NewSyntaxHook(hookID, language string, priority int, parse func(source string) error) Hook {
	return Hook{
		HookID:   hookID,
		HookType: "syntax",
		Priority: priority,
		Validator: func(data any) (bool, string) {
			source, ok := data.(string)
			if !ok {
				return false, "syntax hook requires a string payload"
			}
			if err := parse(source); err != nil {
				return false, "syntax error: " + err.Error()
			}
			return true, ""
		},
	}
}

// SchemaChecker validates a decoded JSON-like value against a schema.
type SchemaChecker func(data any) (bool, string)

// NewJSONSchemaHook builds a hook delegating to a schema checker function.
// The concrete schema representation is left to the caller (spec.md treats
// JSON-schema validation as a pluggable collaborator).
func NewJSONSchemaHook(hookID string, priority int, check SchemaChecker) Hook {
	return Hook{HookID: hookID, HookType: "schema", Priority: priority, Validator: check}
}

// NewCostBoundHook builds a hook that fails when data (expected float64 cost)
// exceeds maxCost.
func NewCostBoundHook(hookID string, priority int, maxCost float64) Hook {
	return Hook{
		HookID:   hookID,
		HookType: "budget",
		Priority: priority,
		Validator: func(data any) (bool, string) {
			cost, ok := data.(float64)
			if !ok {
				return false, "cost-bound hook requires a float64 payload"
			}
			if cost > maxCost {
				return false, "cost exceeds bound"
			}
			return true, ""
		},
	}
}
