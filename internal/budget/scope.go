package budget

import (
	"fmt"
	"math"
	"sync"

	"codenerd/internal/tokencost"
)

// ModelTier is one of the four abstraction tiers an operator can request
// work at; a TierResolver maps it to a concrete model id.
type ModelTier string

const (
	TierHighest ModelTier = "highest"
	TierMiddle  ModelTier = "middle"
	TierSmall   ModelTier = "small"
	TierXS      ModelTier = "xs"
)

// TierResolver maps a model tier to a concrete model id. Satisfied by
// internal/llm.ModelRegistry; declared here to avoid an import cycle.
type TierResolver interface {
	ResolveModelID(tier ModelTier) (string, error)
}

// Scope is a soft budget around a single reasoning step or group of steps
// (spec component C4). Scopes form a forest via ParentScopeID; closing a
// parent does not close its children.
type Scope struct {
	mu sync.Mutex

	ScopeID         string
	ParentScopeID   string
	ModelTier       ModelTier
	MaxTokensAllowed *int64
	MaxCostAllowed   *float64

	tokensConsumed int64
	costIncurred   float64

	autoApproveThreshold float64
	active               bool

	resolver  TierResolver
	estimator *tokencost.Estimator
	manager   *Manager
}

// NewScope constructs a Scope. manager may be nil only if every approval
// is expected to be satisfied locally (tests); production code always wires
// a Manager so requests exceeding the auto-approve threshold still go
// through the session-wide gate.
func NewScope(scopeID, parentScopeID string, tier ModelTier, resolver TierResolver, estimator *tokencost.Estimator, manager *Manager) *Scope {
	return &Scope{
		ScopeID:              scopeID,
		ParentScopeID:        parentScopeID,
		ModelTier:            tier,
		resolver:             resolver,
		estimator:            estimator,
		manager:              manager,
		autoApproveThreshold: DefaultAutoApproveThreshold,
		active:                true,
	}
}

// SetCaps sets the optional hard caps for this scope.
func (s *Scope) SetCaps(maxTokens *int64, maxCost *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MaxTokensAllowed = maxTokens
	s.MaxCostAllowed = maxCost
}

// SetAutoApproveThreshold overrides the scope's local auto-approve ceiling.
func (s *Scope) SetAutoApproveThreshold(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoApproveThreshold = v
}

// Close marks the scope inactive. Closed scopes reject further requests.
// Closing a parent does not close its children (spec.md §4.4).
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// Consumption returns the tokens/cost accrued against this scope so far.
func (s *Scope) Consumption() (int64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokensConsumed, s.costIncurred
}

// RequestApproval implements the spec.md §4.4 5-step algorithm: resolve
// model, estimate, check caps, auto-approve under threshold, else delegate
// to the Budget Manager.
func (s *Scope) RequestApproval(prompt, description string) (modelID string, approved bool, err error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return "", false, fmt.Errorf("budget scope %s is closed", s.ScopeID)
	}
	s.mu.Unlock()

	modelID, err = s.resolver.ResolveModelID(s.ModelTier)
	if err != nil {
		return "", false, fmt.Errorf("resolve model for tier %s: %w", s.ModelTier, err)
	}

	tokens, cost := s.estimator.Estimate(prompt, modelID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MaxTokensAllowed != nil && s.tokensConsumed+tokens > *s.MaxTokensAllowed {
		return modelID, false, nil
	}
	if s.MaxCostAllowed != nil && s.costIncurred+cost > *s.MaxCostAllowed {
		return modelID, false, nil
	}

	if cost <= s.autoApproveThreshold {
		s.tokensConsumed += tokens
		s.costIncurred = round6(s.costIncurred + cost)
		return modelID, true, nil
	}

	if s.manager == nil {
		// No session-wide manager wired: treat as auto-denied above threshold.
		return modelID, false, nil
	}

	approved = s.manager.RequestApproval(description, prompt, modelID)
	if approved {
		s.tokensConsumed += tokens
		s.costIncurred = round6(s.costIncurred + cost)
	}
	return modelID, approved, nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
