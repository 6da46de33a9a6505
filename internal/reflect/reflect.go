// Package reflect (no relation to the standard library package of the same
// name) implements the Reflective Operator Base (spec.md §4.6): the
// budget/validation/retry scaffolding shared by every LLM-driven agent in
// the orchestration engine.
package reflect

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"codenerd/internal/budget"
	"codenerd/internal/llm"
	"codenerd/internal/logging"
	"codenerd/internal/tokencost"
	"codenerd/internal/trajectory"
	"codenerd/internal/validate"
)

var log = logging.L("reflect")

// StepResult is what ExecuteReasoningStep returns on approval.
type StepResult struct {
	StepID         string
	Response       string
	ModelID        string
	TokensConsumed int64
	CostIncurred   float64
}

// Operator is the shared base embedded by every concrete agent (planner,
// modifier, quality checker, operational checker, knowledge retriever).
// It owns one Phase Cost Tracker and a top-level Budget Scope, per
// spec.md §4.6.
type Operator struct {
	Tracker   *trajectory.Tracker
	TopScope  *budget.Scope
	Registry  *validate.Registry
	LLM       llm.ModelRegistry
	Estimator *tokencost.Estimator
	Manager   *budget.Manager

	// MaxReasoningSteps bounds the validate-and-retry loop subclasses run
	// in Execute; defaults to 3 when zero.
	MaxReasoningSteps int

	// RetryPolicy bounds retries of a transient provider error around the
	// model call itself, per spec.md §7.
	RetryPolicy llm.RetryPolicy
}

// NewOperator wires an Operator's collaborators.
func NewOperator(tracker *trajectory.Tracker, topScope *budget.Scope, registry *validate.Registry, modelRegistry llm.ModelRegistry, estimator *tokencost.Estimator, manager *budget.Manager) *Operator {
	return &Operator{
		Tracker:           tracker,
		TopScope:          topScope,
		Registry:          registry,
		LLM:               modelRegistry,
		Estimator:         estimator,
		Manager:           manager,
		MaxReasoningSteps: 3,
		RetryPolicy:       llm.DefaultRetryPolicy(),
	}
}

// ExecuteReasoningStep implements the spec.md §4.6 5-step algorithm: spawn
// a child budget scope, request approval, invoke the model synchronously,
// record the step, and return its result. Returns (nil, nil) — "none" — on
// budget refusal, matching the source's return-none-on-refusal contract.
func (o *Operator) ExecuteReasoningStep(ctx context.Context, phaseID, description, prompt string, tier budget.ModelTier) (*StepResult, error) {
	stepID := uuid.New().String()

	child := budget.NewScope(uuid.New().String(), o.TopScope.ScopeID, tier, o.LLM, o.Estimator, o.Manager)
	// The child carries the top-level scope's token and cost caps.
	child.SetCaps(o.TopScope.MaxTokensAllowed, o.TopScope.MaxCostAllowed)
	defer child.Close()

	modelID, approved, err := child.RequestApproval(prompt, description)
	if err != nil {
		return nil, fmt.Errorf("reflect: request approval: %w", err)
	}
	if !approved {
		log.Debugw("reasoning step refused by budget", "phase", phaseID, "step", stepID)
		return nil, nil
	}

	handle, err := o.LLM.Resolve(tier)
	if err != nil {
		return nil, fmt.Errorf("reflect: resolve model handle: %w", err)
	}

	var reply llm.Message
	var usage llm.Usage
	err = o.RetryPolicy.Do(ctx, func() error {
		var respErr error
		reply, usage, respErr = handle.Respond(ctx, []llm.Message{{Role: "user", Content: prompt}})
		return respErr
	})
	if err != nil {
		o.Tracker.RecordReasoningStep(stepID, prompt, "", modelID, 0, 0, nil, nil)
		o.Tracker.RecordValidation(stepID, false, err.Error())
		return nil, fmt.Errorf("reflect: model respond: %w", err)
	}

	tokens := usage.InputTokens + usage.OutputTokens
	_, cost := o.Estimator.Estimate(prompt+reply.Content, modelID)

	o.Tracker.RecordReasoningStep(stepID, prompt, reply.Content, modelID, tokens, cost, nil, nil)

	return &StepResult{
		StepID:         stepID,
		Response:       reply.Content,
		ModelID:        modelID,
		TokensConsumed: tokens,
		CostIncurred:   cost,
	}, nil
}

// ValidateReasoningStep runs validation hooks against data and records the
// aggregate outcome against stepID via the Phase Cost Tracker.
func (o *Operator) ValidateReasoningStep(stepID string, data any, hookTypes ...string) (bool, map[string]validate.Result) {
	results := o.Registry.RunValidationHooks(data, hookTypes...)
	passed := validate.AllPass(results)

	feedback := ""
	for _, r := range results {
		if !r.Outcome && r.Feedback != "" {
			feedback = r.Feedback
			break
		}
	}
	o.Tracker.RecordValidation(stepID, passed, feedback)
	return passed, results
}

// Capabilities is the composition-based alternative to a class hierarchy
// (design note §9): each concrete agent carries this bundle plus its
// specialized state, rather than subclassing Operator.
type Capabilities struct {
	RunReasoningStep func(ctx context.Context, phaseID, description, prompt string, tier budget.ModelTier) (*StepResult, error)
	RegisterHook     func(h validate.Hook)
	Execute          func(ctx context.Context) (bool, any, error)
}

// CapabilitiesFor builds the standard Capabilities bundle backed by o.
func (o *Operator) CapabilitiesFor(execute func(ctx context.Context) (bool, any, error)) Capabilities {
	return Capabilities{
		RunReasoningStep: o.ExecuteReasoningStep,
		RegisterHook:     o.Registry.Register,
		Execute:          execute,
	}
}
