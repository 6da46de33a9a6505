package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/tokencost"
)

func newTestEstimator() *tokencost.Estimator {
	return tokencost.NewEstimator(map[string]float64{"model-a": 10.0})
}

func TestRequestApprovalAutoApprovesBelowThreshold(t *testing.T) {
	m := NewManager(newTestEstimator(), denyingApprover{}, nil)
	m.SetAutoApproveThreshold(1.0)
	approved := m.RequestApproval("tiny call", "hi", "model-a")
	assert.True(t, approved)
	tokens, cost := m.GetSessionConsumption()
	assert.Greater(t, tokens, int64(0))
	assert.Greater(t, cost, 0.0)
}

func TestRequestApprovalRejectsOverSessionBudget(t *testing.T) {
	budget := 0.0000001
	m := NewManager(newTestEstimator(), AutoApprover{}, &budget)
	m.SetAutoApproveThreshold(0) // force the session-budget path

	before, beforeCost := m.GetSessionConsumption()
	approved := m.RequestApproval("big call", "a very long prompt that costs more than the ceiling allows here", "model-a")
	assert.False(t, approved)

	after, afterCost := m.GetSessionConsumption()
	assert.Equal(t, before, after, "rejection must not mutate consumed tokens")
	assert.Equal(t, beforeCost, afterCost, "rejection must not mutate consumed cost")
}

type denyingApprover struct{}

func (denyingApprover) Approve(string, string, float64) bool { return false }

func TestRequestApprovalRejectsWhenApproverDeclines(t *testing.T) {
	m := NewManager(newTestEstimator(), denyingApprover{}, nil)
	m.SetAutoApproveThreshold(0)

	before, beforeCost := m.GetSessionConsumption()
	approved := m.RequestApproval("call", "some prompt text here", "model-a")
	assert.False(t, approved)
	after, afterCost := m.GetSessionConsumption()
	assert.Equal(t, before, after)
	assert.Equal(t, beforeCost, afterCost)
}

func TestUpdateFromMetricsReconcilesActualUsage(t *testing.T) {
	m := NewManager(newTestEstimator(), AutoApprover{}, nil)
	require.True(t, m.RequestApproval("call", "hi", "model-a"))

	before, _ := m.GetSessionConsumption()
	m.UpdateFromMetrics("model-a", before+100, 1.23)

	after, cost := m.GetSessionConsumption()
	assert.Equal(t, before+100, after)
	assert.Equal(t, 1.23, cost)
}
