// Package budget implements the Budget Manager (C2) and Budget Scope (C4):
// session-wide token/cost accounting with an approval gate, and per-step
// soft budgets that nest into a parent/child forest.
package budget

import (
	"sync"

	"codenerd/internal/logging"
	"codenerd/internal/tokencost"
)

var log = logging.L("budget")

// DefaultAutoApproveThreshold is the cost below which approval is implicit.
const DefaultAutoApproveThreshold = 0.001

// Approver models an external approval channel — interactive (CLI prompt)
// or programmatic (always-approve in tests, policy engine in production).
type Approver interface {
	Approve(description, prompt string, estimatedCost float64) bool
}

// AutoApprover always approves. Used by default and in tests.
type AutoApprover struct{}

func (AutoApprover) Approve(string, string, float64) bool { return true }

// ProviderStats tracks accumulated usage for a single provider/model.
type ProviderStats struct {
	Tokens int64
	Cost   float64
}

// Manager is the session-scoped Budget Manager (C2).
type Manager struct {
	mu sync.Mutex

	estimator             *tokencost.Estimator
	approver              Approver
	autoApproveThreshold  float64
	sessionBudget         *float64 // nil = unbounded

	consumedTokens int64
	consumedCost   float64
	byProvider     map[string]*ProviderStats
}

// NewManager builds a Manager. sessionBudget is nil for no ceiling.
func NewManager(estimator *tokencost.Estimator, approver Approver, sessionBudget *float64) *Manager {
	if approver == nil {
		approver = AutoApprover{}
	}
	return &Manager{
		estimator:            estimator,
		approver:             approver,
		autoApproveThreshold: DefaultAutoApproveThreshold,
		sessionBudget:        sessionBudget,
		byProvider:           make(map[string]*ProviderStats),
	}
}

// SetAutoApproveThreshold overrides the default auto-approve cost ceiling.
func (m *Manager) SetAutoApproveThreshold(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoApproveThreshold = v
}

// Estimate delegates to the token/cost estimator.
func (m *Manager) Estimate(prompt, modelID string) (int64, float64) {
	return m.estimator.Estimate(prompt, modelID)
}

// RequestApproval implements the spec.md §4.2 4-step gate. Rejecting a
// request never mutates accumulators (tested invariant).
func (m *Manager) RequestApproval(description, prompt, modelID string) bool {
	tokens, cost := m.Estimate(prompt, modelID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if cost < m.autoApproveThreshold {
		m.accrueLocked(modelID, tokens, cost)
		return true
	}

	if m.sessionBudget != nil && m.consumedCost+cost > *m.sessionBudget {
		log.Warnw("budget denied: would exceed session budget",
			"description", description, "estimated_cost", cost,
			"consumed", m.consumedCost, "session_budget", *m.sessionBudget)
		return false
	}

	approved := m.approver.Approve(description, prompt, cost)
	if !approved {
		log.Infow("budget approval declined", "description", description, "estimated_cost", cost)
		return false
	}

	m.accrueLocked(modelID, tokens, cost)
	return true
}

func (m *Manager) accrueLocked(modelID string, tokens int64, cost float64) {
	m.consumedTokens += tokens
	m.consumedCost += cost

	stats, ok := m.byProvider[modelID]
	if !ok {
		stats = &ProviderStats{}
		m.byProvider[modelID] = stats
	}
	stats.Tokens += tokens
	stats.Cost += cost
}

// UpdateFromMetrics reconciles an accrued estimate with actual provider-reported
// usage after a real LLM call completes.
func (m *Manager) UpdateFromMetrics(modelID string, actualTokens int64, actualCost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.byProvider[modelID]
	if !ok {
		stats = &ProviderStats{}
		m.byProvider[modelID] = stats
	}

	delta := actualTokens - stats.Tokens
	m.consumedTokens += delta
	stats.Tokens = actualTokens

	costDelta := actualCost - stats.Cost
	m.consumedCost += costDelta
	stats.Cost = actualCost
}

// GetSessionConsumption returns (tokens, cost) consumed so far.
func (m *Manager) GetSessionConsumption() (int64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumedTokens, m.consumedCost
}

// ProviderSnapshot returns a copy of per-provider stats.
func (m *Manager) ProviderSnapshot() map[string]ProviderStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ProviderStats, len(m.byProvider))
	for k, v := range m.byProvider {
		out[k] = *v
	}
	return out
}
