// Package trajectory implements the Phase Cost Tracker (spec component C3):
// a per-operation, append-only record of phases and the reasoning steps
// (LLM calls) executed within them.
package trajectory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"codenerd/internal/logging"
	"codenerd/internal/tokencost"
)

var log = logging.L("trajectory")

// ReasoningStep records one LLM call plus its validation outcome.
type ReasoningStep struct {
	StepID             string        `json:"step_id"`
	Prompt             string        `json:"prompt"`
	Response           string        `json:"response"`
	TokensConsumed     int64         `json:"tokens_consumed"`
	CostIncurred       float64       `json:"cost_incurred"`
	ModelID            string        `json:"model_id"`
	ToolsUsed          []string      `json:"tools_used,omitempty"`
	ContextChunksUsed  []string      `json:"context_chunks_used,omitempty"`
	ValidationOutcome  *bool         `json:"validation_outcome,omitempty"`
	ValidationFeedback *string       `json:"validation_feedback,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// PhaseOutcome is the terminal state recorded when a phase ends.
type PhaseOutcome struct {
	Success  *bool  `json:"success,omitempty"`
	Result   any    `json:"result,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// Phase is one logical stage within an operation.
type Phase struct {
	PhaseID        string          `json:"phase_id"`
	Description    string          `json:"description"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time,omitempty"`
	ModelUsed      string          `json:"model_used"`
	Accumulated    tokencost.Cost  `json:"accumulated_cost"`
	ReasoningSteps []ReasoningStep `json:"reasoning_steps"`
	Outcome        PhaseOutcome    `json:"outcome"`
}

// OperationTrajectory is the append-only log for one call to Execute.
type OperationTrajectory struct {
	OperationID   string         `json:"operation_id"`
	OperationType string         `json:"operation_type"`
	Phases        []Phase        `json:"phases"`
	TotalCost     tokencost.Cost `json:"total_cost"`
	OverallSuccess *bool         `json:"overall_success,omitempty"`
	FinalResult   any            `json:"final_result,omitempty"`
}

// Tracker manages one OperationTrajectory's lifecycle. Not safe for
// concurrent use from multiple goroutines without external serialization at
// the phase level (phases are logically sequential per spec.md §5); the
// mutex only protects bookkeeping during concurrent reasoning-step recording
// within a single phase.
type Tracker struct {
	mu      sync.Mutex
	traj    OperationTrajectory
	current *Phase

	// onSessionAccrue, if set, is invoked with every recorded step so a
	// Budget Manager can accrue session-wide counters (spec.md §4.3).
	onSessionAccrue func(tokens int64, cost float64)
}

// New creates a tracker for a new operation.
func New(operationType string) *Tracker {
	return &Tracker{
		traj: OperationTrajectory{
			OperationID:   uuid.New().String(),
			OperationType: operationType,
		},
	}
}

// OnSessionAccrue registers a callback invoked on every recorded reasoning
// step, used to reconcile usage into a session-wide Budget Manager.
func (t *Tracker) OnSessionAccrue(fn func(tokens int64, cost float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSessionAccrue = fn
}

// OperationID returns the tracker's operation id.
func (t *Tracker) OperationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.traj.OperationID
}

// StartPhase begins a new current phase. If another phase is already
// current, it is auto-ended first with an unknown (nil) outcome so its
// reasoning steps are never lost (spec.md §8 round-trip property).
func (t *Tracker) StartPhase(phaseID, description, modelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		log.Warnw("auto-ending dangling phase before starting new one",
			"prior_phase", t.current.PhaseID, "next_phase", phaseID)
		t.endCurrentLocked(nil, nil, "")
	}

	t.current = &Phase{
		PhaseID:     phaseID,
		Description: description,
		StartTime:   time.Now(),
		ModelUsed:   modelID,
	}
}

// RecordReasoningStep records into the current phase, starting an implicit
// phase when none is open; it accrues cost into the phase and operation
// totals, appends the step, and forwards the accrual to
// the registered session callback (Budget Manager).
func (t *Tracker) RecordReasoningStep(stepID, prompt, response, modelID string, tokens int64, cost float64, toolsUsed, contextChunksUsed []string) ReasoningStep {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		// No current phase: create an implicit one so the step is never lost.
		log.Warnw("recording reasoning step with no current phase; starting implicit phase", "step_id", stepID)
		t.current = &Phase{PhaseID: "implicit_" + stepID, StartTime: time.Now(), ModelUsed: modelID}
	}

	step := ReasoningStep{
		StepID:            stepID,
		Prompt:            prompt,
		Response:          response,
		TokensConsumed:    tokens,
		CostIncurred:      cost,
		ModelID:           modelID,
		ToolsUsed:         toolsUsed,
		ContextChunksUsed: contextChunksUsed,
		CreatedAt:         time.Now(),
	}

	t.current.ReasoningSteps = append(t.current.ReasoningSteps, step)
	t.current.Accumulated = t.current.Accumulated.Add(tokencost.Cost{Tokens: tokens, Amount: cost})
	t.traj.TotalCost = t.traj.TotalCost.Add(tokencost.Cost{Tokens: tokens, Amount: cost})

	if t.onSessionAccrue != nil {
		t.onSessionAccrue(tokens, cost)
	}

	return step
}

// RecordValidation locates the matching step by id and sets its validation
// fields. If no such step exists (e.g. it was produced via a mocked path) a
// placeholder record is created so the validation is never lost — this
// preserves the teacher's source behavior per spec.md §9 open question.
// A second call for the same step overwrites outcome/feedback: last writer
// wins.
func (t *Tracker) RecordValidation(stepID string, outcome bool, feedback string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		t.current = &Phase{PhaseID: "implicit_validation", StartTime: time.Now()}
	}

	for i := range t.current.ReasoningSteps {
		if t.current.ReasoningSteps[i].StepID == stepID {
			o := outcome
			f := feedback
			t.current.ReasoningSteps[i].ValidationOutcome = &o
			t.current.ReasoningSteps[i].ValidationFeedback = &f
			return
		}
	}

	o := outcome
	f := feedback
	t.current.ReasoningSteps = append(t.current.ReasoningSteps, ReasoningStep{
		StepID:             stepID,
		ValidationOutcome:  &o,
		ValidationFeedback: &f,
		CreatedAt:          time.Now(),
	})
}

// EndPhase freezes the current phase and appends it to the trajectory.
func (t *Tracker) EndPhase(success *bool, result any, feedback string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endCurrentLocked(success, result, feedback)
}

func (t *Tracker) endCurrentLocked(success *bool, result any, feedback string) {
	if t.current == nil {
		return
	}
	t.current.EndTime = time.Now()
	t.current.Outcome = PhaseOutcome{Success: success, Result: result, Feedback: feedback}
	t.traj.Phases = append(t.traj.Phases, *t.current)
	t.current = nil
}

// CompleteOperation auto-ends any current phase and finalizes overall success.
func (t *Tracker) CompleteOperation(success bool, finalResult any) OperationTrajectory {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.endCurrentLocked(nil, nil, "auto-ended at operation completion")
	}

	s := success
	t.traj.OverallSuccess = &s
	t.traj.FinalResult = finalResult
	return t.traj
}

// Trajectory returns a snapshot of the trajectory recorded so far.
func (t *Tracker) Trajectory() OperationTrajectory {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.traj
}

// CostSummary is the per-phase and aggregate breakdown returned by GetCostSummary.
type CostSummary struct {
	ByPhase map[string]PhaseSummary `json:"by_phase"`
	Total   tokencost.Cost          `json:"total"`
}

// PhaseSummary is one phase's contribution to the cost summary.
type PhaseSummary struct {
	Tokens    int64   `json:"tokens"`
	Cost      float64 `json:"cost"`
	StepCount int     `json:"step_count"`
}

// GetCostSummary aggregates per-phase tokens/cost/step-count and totals.
func (t *Tracker) GetCostSummary() CostSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := CostSummary{ByPhase: make(map[string]PhaseSummary), Total: t.traj.TotalCost}
	for _, p := range t.traj.Phases {
		summary.ByPhase[p.PhaseID] = PhaseSummary{
			Tokens:    p.Accumulated.Tokens,
			Cost:      p.Accumulated.Amount,
			StepCount: len(p.ReasoningSteps),
		}
	}
	if t.current != nil {
		summary.ByPhase[t.current.PhaseID] = PhaseSummary{
			Tokens:    t.current.Accumulated.Tokens,
			Cost:      t.current.Accumulated.Amount,
			StepCount: len(t.current.ReasoningSteps),
		}
	}
	return summary
}
