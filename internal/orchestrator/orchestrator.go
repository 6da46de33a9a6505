// Package orchestrator implements the Orchestration Agent (spec.md
// §4.15): the top-level state machine that analyzes a project, retrieves
// knowledge, plans, executes, validates, self-heals at most once, and
// decides approve/reject. Grounded on the teacher's campaign-orchestration
// shape in internal/campaign/orchestrator.go and internal/campaign/replan.go,
// adapted from multi-agent campaign coordination to this single-objective
// evolve-and-validate pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"codenerd/internal/architecture"
	"codenerd/internal/budget"
	"codenerd/internal/execution"
	"codenerd/internal/healing"
	"codenerd/internal/knowledge"
	"codenerd/internal/llm"
	"codenerd/internal/logging"
	"codenerd/internal/operational"
	"codenerd/internal/planning"
	"codenerd/internal/project"
	"codenerd/internal/quality"
	"codenerd/internal/reflect"
	"codenerd/internal/sandbox"
	"codenerd/internal/scoring"
	"codenerd/internal/tokencost"
	"codenerd/internal/trajectory"
	"codenerd/internal/validate"
	"codenerd/internal/vectorstore"
)

// ErrBudgetRefused is the sentinel a reflectingHandle returns when the
// Budget Manager (C2) or the enclosing Budget Scope (C4) declines to
// approve a reasoning step, per spec.md §8 Scenario 2. Callers that wrap
// provider errors with %w (planning.Generate, execution.Executor.Run)
// preserve it, so errors.Is(err, ErrBudgetRefused) detects the refusal at
// any distance up the call stack.
var ErrBudgetRefused = errors.New("orchestrator: reasoning step refused by budget")

var log = logging.L("orchestrator")

// Objective is one call's input, per spec.md §4.15 step 1.
type Objective struct {
	Task         string
	ProjectPath  string
	Language     string
	Constraints  []string
	QualityGates []string
}

// Result is the sanitized record returned by Execute, per spec.md §4.15
// step 10.
type Result struct {
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	ErrorDetail string `json:"error_details,omitempty"`

	Modifications map[string]string `json:"modifications,omitempty"`

	QualityResults quality.Result     `json:"quality_results,omitempty"`
	SREResults     operational.Result `json:"sre_results,omitempty"`

	ReasoningTrajectory trajectory.OperationTrajectory `json:"reasoning_trajectory,omitempty"`

	KnowledgeApplied          bool     `json:"knowledge_applied"`
	KnowledgeApplicationScore *float64 `json:"knowledge_application_score,omitempty"`
	KnowledgeFeedback         *string  `json:"knowledge_feedback,omitempty"`
}

// SessionState is the orchestrator's working state for one Execute call,
// per spec.md §3's recognized keys. Extra holds anything a future
// component needs that hasn't earned a typed field yet (design note §9).
type SessionState struct {
	Objective   string
	ProjectPath string
	Task        string
	Constraints []string
	QualityGates []string

	Analysis             architecture.Context
	ArchitecturalContext architecture.Context
	SystemType           architecture.SystemType

	RetrievedContext string
	KnowledgeCache   map[string]string

	ModificationPlan   planning.Plan
	ModificationResult execution.Result

	QualityResults quality.Result
	SREResults     operational.Result

	ReasoningTrajectory trajectory.OperationTrajectory
	ModifiedFiles       map[string]string
	UnitTests           []string

	KnowledgeEffectiveness float64

	Extra map[string]any
}

// Config tunes the orchestrator's concurrency and timeout behavior, per
// spec.md §5.
type Config struct {
	// WorkerPoolSize bounds concurrent independent validation work;
	// clamped to [2, 16] if zero or out of range.
	WorkerPoolSize int
	// PhaseTimeout bounds the context deadline of the retrieve_knowledge,
	// plan and execute phases; validation and self-heal run under the
	// caller's context.
	PhaseTimeout time.Duration
	// LLMCallTimeout holds the configured per-call LLM deadline. Execute
	// does not apply it: each LLM call runs under the context of the stage
	// that makes it.
	LLMCallTimeout time.Duration
}

// DefaultConfig returns spec.md §5's defaults.
func DefaultConfig() Config {
	return Config{
		WorkerPoolSize: clampPoolSize(runtime.NumCPU()),
		PhaseTimeout:   10 * time.Minute,
		LLMCallTimeout: 60 * time.Second,
	}
}

func clampPoolSize(n int) int {
	if n < 2 {
		return 2
	}
	if n > 16 {
		return 16
	}
	return n
}

// Orchestrator wires every component (C1-C14) into the C15 state machine.
type Orchestrator struct {
	LLM         llm.ModelRegistry
	VectorStore vectorstore.Store
	Embedder    vectorstore.Embedder
	Sandbox     sandbox.SyntaxChecker
	Linter      quality.StaticAnalyzer
	Manifests   operational.Manifests
	Estimator   *tokencost.Estimator
	Manager     *budget.Manager

	Config Config

	cacheMu        sync.Mutex
	knowledgeCache map[string]string
}

// New builds an Orchestrator with spec.md §5's default concurrency config.
func New(llmRegistry llm.ModelRegistry, store vectorstore.Store, embedder vectorstore.Embedder, checker sandbox.SyntaxChecker, linter quality.StaticAnalyzer, manifests operational.Manifests, estimator *tokencost.Estimator, manager *budget.Manager) *Orchestrator {
	return &Orchestrator{
		LLM:            llmRegistry,
		VectorStore:    store,
		Embedder:       embedder,
		Sandbox:        checker,
		Linter:         linter,
		Manifests:      manifests,
		Estimator:      estimator,
		Manager:        manager,
		Config:         DefaultConfig(),
		knowledgeCache: make(map[string]string),
	}
}

// Execute runs the 10-step state machine of spec.md §4.15 against fs.
// Any panic or unexpected error is recovered into a rejected Result rather
// than propagating, per spec.md §7.
func (o *Orchestrator) Execute(ctx context.Context, obj Objective, fs project.FileSystem) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("orchestrator: recovered panic", "panic", r)
			result = Result{Decision: "reject", Reason: "internal error", ErrorDetail: fmt.Sprintf("%v", r)}
			err = nil
		}
	}()

	// Step 1: validate required fields.
	if obj.Task == "" || obj.ProjectPath == "" {
		return Result{Decision: "reject", Reason: "objective missing required field: task and project_path are both required"}, nil
	}

	state := &SessionState{
		Objective:      obj.Task,
		ProjectPath:    obj.ProjectPath,
		Task:           obj.Task,
		Constraints:    obj.Constraints,
		QualityGates:   obj.QualityGates,
		KnowledgeCache: o.snapshotKnowledgeCache(),
		Extra:          make(map[string]any),
	}

	// Step 2: initialize teams with the shared session state. Every
	// tier-resolving LLM call below is routed through a shared Reflective
	// Operator (C6) so it is gated by the Budget Manager/Scope (C2/C4) and
	// recorded on the trajectory (C3), per spec.md §2's data flow and §5's
	// whole-execute budget ceiling.
	tracker := trajectory.New("evolve_objective")
	topScope := budget.NewScope(uuid.New().String(), "", budget.TierHighest, o.LLM, o.Estimator, o.Manager)
	defer topScope.Close()
	operator := reflect.NewOperator(tracker, topScope, validate.NewRegistry(), o.LLM, o.Estimator, o.Manager)

	// Step 3: analyze project context (C9).
	tracker.StartPhase("analyze_context", "architectural context inference", "")
	archCtx := architecture.Analyze(obj.Task, "", obj.Constraints)
	state.Analysis = archCtx
	state.ArchitecturalContext = archCtx
	state.SystemType = architecture.SystemType(archCtx.SystemType)
	tracker.EndPhase(boolPtr(true), nil, "")
	o.appendTrajectory(state, tracker)

	// Step 4: retrieve knowledge context (C7), cache-backed.
	phaseCtx, cancel := context.WithTimeout(ctx, o.Config.PhaseTimeout)
	retrieved, _ := o.retrieveKnowledge(phaseCtx, tracker, obj.Task, archCtx)
	cancel()
	state.RetrievedContext = retrieved

	// Step 5: plan (C10).
	phaseCtx, cancel = context.WithTimeout(ctx, o.Config.PhaseTimeout)
	tracker.StartPhase("plan", "generate modification plan", "")
	planningLLM := &reflectingRegistry{op: operator, phaseID: "plan", description: "generate modification plan"}
	planner := planning.New(planningLLM, fs)
	plan, err := planner.Generate(phaseCtx, planning.Request{
		Task:             obj.Task,
		RetrievedContext: retrieved,
		ProjectPath:      obj.ProjectPath,
		Language:         obj.Language,
	}, archCtx)
	cancel()
	if err != nil {
		tracker.EndPhase(boolPtr(false), nil, err.Error())
		o.appendTrajectory(state, tracker)
		if errors.Is(err, ErrBudgetRefused) {
			return o.reject(state, tracker, fmt.Sprintf("budget: planning refused: %v", err)), nil
		}
		return o.reject(state, tracker, fmt.Sprintf("planning failed: %v", err)), nil
	}
	state.ModificationPlan = plan
	tracker.EndPhase(boolPtr(true), nil, "")
	o.appendTrajectory(state, tracker)

	// Step 6: execute modifications (C11).
	phaseCtx, cancel = context.WithTimeout(ctx, o.Config.PhaseTimeout)
	tracker.StartPhase("execute", "apply plan steps", "")
	retriever := knowledge.New(o.VectorStore, o.Embedder, o.LLM)
	executor := execution.New(retriever, o.Sandbox)
	executionLLM := &reflectingRegistry{op: operator, phaseID: "execute", description: "apply plan step"}
	modifier := &llmModifier{LLM: executionLLM, tier: budget.TierMiddle}
	modResult := executor.Run(phaseCtx, plan, fs, modifier)
	cancel()
	state.ModificationResult = modResult
	state.ModifiedFiles = modResult.ModifiedFiles
	if modResult.Err != nil {
		tracker.EndPhase(boolPtr(false), nil, modResult.Err.Error())
		o.appendTrajectory(state, tracker)
		if errors.Is(modResult.Err, ErrBudgetRefused) {
			return o.reject(state, tracker, fmt.Sprintf("budget: execution refused: %v", modResult.Err)), nil
		}
		return o.reject(state, tracker, fmt.Sprintf("execution failed: %v", modResult.Err)), nil
	}
	tracker.EndPhase(boolPtr(true), nil, "")
	o.appendTrajectory(state, tracker)

	// Step 7: validate quality (C12) and operations (C13), concurrently —
	// the two gates are independent per spec.md §4.12/§4.13. Quality's
	// optional LLM review is the only validator LLM call, so its phase
	// safely spans the concurrent window; operational validation is pure
	// static analysis and is recorded immediately after.
	tracker.StartPhase("quality_validation", "quality gate (syntax, lint, optional LLM review)", "")
	qualityResult, sreResult := o.runValidators(ctx, operator, obj.Task, state.ModifiedFiles)
	tracker.EndPhase(boolPtr(qualityResult.Passed), nil, strings.Join(qualityResult.Issues, "; "))
	o.appendTrajectory(state, tracker)

	tracker.StartPhase("operational_validation", "operational gate (dependencies, sandbox syntax, integration)", "")
	tracker.EndPhase(boolPtr(sreResult.Passed), nil, strings.Join(sreResult.Issues, "; "))
	o.appendTrajectory(state, tracker)

	state.QualityResults = qualityResult
	state.SREResults = sreResult

	// Step 8: if either fails, self-heal (C14), then re-validate exactly
	// once.
	if !qualityResult.Passed || !sreResult.Passed {
		tracker.StartPhase("self_heal", "diagnose failure and attempt one repair", "")
		healed := o.selfHeal(ctx, operator, qualityResult, sreResult, state, fs, archCtx)
		tracker.EndPhase(boolPtr(healed != nil), nil, "")
		o.appendTrajectory(state, tracker)
		if healed != nil {
			state.ModifiedFiles = healed

			tracker.StartPhase("quality_validation", "re-validate after self-heal", "")
			qualityResult, sreResult = o.runValidators(ctx, operator, obj.Task, state.ModifiedFiles)
			tracker.EndPhase(boolPtr(qualityResult.Passed), nil, strings.Join(qualityResult.Issues, "; "))
			o.appendTrajectory(state, tracker)

			tracker.StartPhase("operational_validation", "re-validate after self-heal", "")
			tracker.EndPhase(boolPtr(sreResult.Passed), nil, strings.Join(sreResult.Issues, "; "))
			o.appendTrajectory(state, tracker)

			state.QualityResults = qualityResult
			state.SREResults = sreResult
		}
	}

	// Step 9: decide (C8 scores knowledge application on the way out).
	// approve/reject call tracker.CompleteOperation, which auto-ends this
	// phase.
	tracker.StartPhase("final_decision", "approve or reject", "")
	if qualityResult.Passed && sreResult.Passed {
		return o.approve(state, tracker), nil
	}
	reason := concatIssues(qualityResult.Issues, sreResult.Issues)
	return o.reject(state, tracker, reason), nil
}

func (o *Orchestrator) retrieveKnowledge(ctx context.Context, tracker *trajectory.Tracker, task string, archCtx architecture.Context) (string, string) {
	tracker.StartPhase("retrieve_knowledge", "knowledge context retrieval", "")
	defer func() { tracker.EndPhase(boolPtr(true), nil, "") }()

	cacheKey := knowledge.CacheKey(task, string(archCtx.SystemType), archCtx.ArchitecturePattern)

	o.cacheMu.Lock()
	if cached, ok := o.knowledgeCache[cacheKey]; ok {
		o.cacheMu.Unlock()
		return cached, cacheKey
	}
	o.cacheMu.Unlock()

	retriever := knowledge.New(o.VectorStore, o.Embedder, o.LLM)
	retrieved := retriever.RetrieveContext(ctx, task, 5)

	o.cacheMu.Lock()
	o.knowledgeCache[cacheKey] = retrieved
	o.cacheMu.Unlock()

	return retrieved, cacheKey
}

func (o *Orchestrator) snapshotKnowledgeCache() map[string]string {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	out := make(map[string]string, len(o.knowledgeCache))
	for k, v := range o.knowledgeCache {
		out[k] = v
	}
	return out
}

// runValidators runs the Quality and Operational validators concurrently,
// bounded by the orchestrator's configured worker-pool size. Quality's
// optional LLM review is routed through operator so it is budget-gated and
// recorded on the trajectory under the caller's current phase; it is safe
// to share one open phase across this concurrent window because the
// operational validator never touches the tracker.
func (o *Orchestrator) runValidators(ctx context.Context, operator *reflect.Operator, objective string, modifiedFiles map[string]string) (quality.Result, operational.Result) {
	var (
		qualityResult     quality.Result
		operationalResult operational.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clampPoolSize(o.Config.WorkerPoolSize))

	reviewLLM := &reflectingRegistry{op: operator, phaseID: "quality_validation", description: "LLM code review"}
	g.Go(func() error {
		v := quality.New(o.Sandbox, o.Linter, reviewLLM)
		qualityResult = v.Validate(gctx, objective, modifiedFiles)
		return nil
	})
	g.Go(func() error {
		v := operational.New(o.Sandbox, o.Manifests)
		operationalResult = v.Validate(modifiedFiles)
		return nil
	})
	_ = g.Wait() // neither goroutine returns an error; both always complete

	return qualityResult, operationalResult
}

// selfHeal runs the C14 controller once. Returns nil on human_escalation,
// when a replan yields no plan, or when executing the new plan fails;
// otherwise returns the controller's files (unchanged ones for
// fix_test_logic or no_action) for re-validation.
func (o *Orchestrator) selfHeal(ctx context.Context, operator *reflect.Operator, qr quality.Result, sr operational.Result, state *SessionState, fs project.FileSystem, archCtx architecture.Context) map[string]string {
	issues := concatIssuesSlice(qr.Issues, sr.Issues)
	analysis := healing.AnalyzeFailure(issues)

	healLLM := &reflectingRegistry{op: operator, phaseID: "self_heal", description: "replan after validation failure"}
	planner := planning.New(healLLM, fs)
	controller := healing.New(planner)

	req := planning.Request{Task: state.Task, ProjectPath: state.ProjectPath}
	result := controller.Execute(ctx, analysis, issues, state.ModifiedFiles, req, archCtx, "")

	if result.Escalation != "" {
		state.Extra["escalation"] = result.Escalation
		return nil
	}

	if result.NewPlan != nil {
		executor := execution.New(nil, o.Sandbox)
		modifier := &llmModifier{LLM: healLLM, tier: budget.TierMiddle}
		modResult := executor.Run(ctx, *result.NewPlan, fs, modifier)
		if modResult.Err != nil {
			return nil
		}
		return modResult.ModifiedFiles
	}

	if len(result.Notes) > 0 {
		state.Extra["healing_notes"] = result.Notes
	}

	if result.ModifiedFiles != nil {
		return result.ModifiedFiles
	}
	return nil
}

func (o *Orchestrator) appendTrajectory(state *SessionState, tracker *trajectory.Tracker) {
	state.ReasoningTrajectory = tracker.Trajectory()
}

func (o *Orchestrator) approve(state *SessionState, tracker *trajectory.Tracker) Result {
	traj := tracker.CompleteOperation(true, "approved")
	state.ReasoningTrajectory = traj
	applied := state.RetrievedContext != ""

	// C8: score how well the applied modifications matched the expected
	// code-generation patterns, per spec.md §4.8/§4.15 step 10.
	score := scoring.Score(combinedOutput(state.ModifiedFiles), scoring.DefaultPatterns(scoring.StepCodeGeneration))
	state.KnowledgeEffectiveness = score.OverallScore
	overall := score.OverallScore
	var feedback *string
	if joined := strings.Join(score.Feedback, "; "); joined != "" {
		feedback = &joined
	}

	return sanitize(Result{
		Decision:                  "approve",
		Modifications:             state.ModifiedFiles,
		QualityResults:            state.QualityResults,
		SREResults:                state.SREResults,
		ReasoningTrajectory:       traj,
		KnowledgeApplied:          applied,
		KnowledgeApplicationScore: &overall,
		KnowledgeFeedback:         feedback,
	})
}

func (o *Orchestrator) reject(state *SessionState, tracker *trajectory.Tracker, reason string) Result {
	traj := tracker.CompleteOperation(false, reason)
	state.ReasoningTrajectory = traj
	return sanitize(Result{
		Decision:            "reject",
		Reason:              reason,
		Modifications:       state.ModifiedFiles,
		QualityResults:      state.QualityResults,
		SREResults:          state.SREResults,
		ReasoningTrajectory: traj,
		KnowledgeApplied:    state.RetrievedContext != "",
	})
}

// sanitize round-trips result through JSON so only serializable values
// survive, per spec.md §4.15 step 10. Idempotent: sanitizing an already
// sanitized Result returns an equal Result.
func sanitize(result Result) Result {
	data, err := json.Marshal(result)
	if err != nil {
		return Result{Decision: result.Decision, Reason: result.Reason, ErrorDetail: fmt.Sprintf("sanitize: %v", err)}
	}
	var out Result
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{Decision: result.Decision, Reason: result.Reason, ErrorDetail: fmt.Sprintf("sanitize: %v", err)}
	}
	return out
}

func concatIssues(a, b []string) string {
	all := concatIssuesSlice(a, b)
	out := ""
	for i, issue := range all {
		if i > 0 {
			out += "; "
		}
		out += issue
	}
	return out
}

func concatIssuesSlice(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func boolPtr(b bool) *bool { return &b }

// combinedOutput flattens a modified-files map into one string for the
// Knowledge Application Scorer (C8), which scores text, not file sets.
func combinedOutput(modifiedFiles map[string]string) string {
	var b strings.Builder
	for _, content := range modifiedFiles {
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

// llmModifier is the default execution.ModifierAgent: it asks the LLM to
// produce the new file content directly (no patch-format output).
type llmModifier struct {
	LLM  llm.ModelRegistry
	tier budget.ModelTier
}

func (m *llmModifier) Modify(ctx context.Context, step planning.Step, existingContent, retrievedContext string) (execution.ModifierResult, error) {
	handle, err := m.LLM.Resolve(m.tier)
	if err != nil {
		return execution.ModifierResult{}, fmt.Errorf("llmModifier: resolve model: %w", err)
	}

	prompt := fmt.Sprintf(
		"File: %s\nAction: %s\nWhat: %s\nHow: %s\n\nExisting content:\n%s\n\nRetrieved context:\n%s\n\nReturn only the complete new file content.",
		step.FilePath, step.Action, step.What, step.How, existingContent, retrievedContext,
	)

	reply, _, err := handle.Respond(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return execution.ModifierResult{}, fmt.Errorf("llmModifier: model call: %w", err)
	}

	return execution.ModifierResult{Content: reply.Content}, nil
}

// reflectingRegistry implements llm.ModelRegistry by routing every call
// through a shared Reflective Operator (C6), so any caller built against
// the plain registry interface — the planner, the execution modifier, the
// quality reviewer — gets budget gating (C2/C4), reasoning-step recording
// (C3), and retry (§7) for free, without those packages importing
// internal/reflect themselves.
type reflectingRegistry struct {
	op          *reflect.Operator
	phaseID     string
	description string
}

func (r *reflectingRegistry) Resolve(tier budget.ModelTier) (llm.ModelHandle, error) {
	return &reflectingHandle{op: r.op, phaseID: r.phaseID, description: r.description, tier: tier}, nil
}

func (r *reflectingRegistry) ResolveModelID(tier budget.ModelTier) (string, error) {
	return r.op.LLM.ResolveModelID(tier)
}

// reflectingHandle is the llm.ModelHandle a reflectingRegistry resolves to.
// Respond flattens the message list into one prompt and runs it through
// ExecuteReasoningStep instead of calling a provider directly.
type reflectingHandle struct {
	op          *reflect.Operator
	phaseID     string
	description string
	tier        budget.ModelTier
}

func (h *reflectingHandle) ModelID() string {
	id, _ := h.op.LLM.ResolveModelID(h.tier)
	return id
}

func (h *reflectingHandle) Respond(ctx context.Context, messages []llm.Message) (llm.Message, llm.Usage, error) {
	prompt := renderMessages(messages)
	res, err := h.op.ExecuteReasoningStep(ctx, h.phaseID, h.description, prompt, h.tier)
	if err != nil {
		return llm.Message{}, llm.Usage{}, fmt.Errorf("reflecting handle: %w", err)
	}
	if res == nil {
		return llm.Message{}, llm.Usage{}, fmt.Errorf("%w: %s", ErrBudgetRefused, h.description)
	}
	return llm.Message{Role: "assistant", Content: res.Response}, llm.Usage{OutputTokens: res.TokensConsumed}, nil
}

func renderMessages(messages []llm.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
