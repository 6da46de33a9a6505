package tokencost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateDefaultPriceForUnknownModel(t *testing.T) {
	e := NewEstimator(map[string]float64{"known-model": 5.0})

	tokens, cost := e.Estimate("a short prompt of some length", "unknown-model")
	require.Greater(t, tokens, int64(0))
	assert.Equal(t, round6(float64(tokens)/1000.0*DefaultPrice), cost)
}

func TestEstimateKnownModelUsesPriceTable(t *testing.T) {
	e := NewEstimator(map[string]float64{"gpt-x": 10.0})

	tokens, cost := e.Estimate("hello world", "gpt-x")
	assert.Equal(t, round6(float64(tokens)/1000.0*10.0), cost)
}

func TestCostAddIsAdditiveMonoid(t *testing.T) {
	a := Cost{Tokens: 10, Amount: 0.01}
	b := Cost{Tokens: 5, Amount: 0.005}

	sum := a.Add(b)
	assert.Equal(t, int64(15), sum.Tokens)
	assert.InDelta(t, 0.015, sum.Amount, 1e-9)

	assert.Equal(t, a, a.Add(Zero()))
}

func TestCountEmptyStringIsZero(t *testing.T) {
	e := NewEstimator(nil)
	assert.Equal(t, 0, e.Count("", "anything"))
}

func TestEstimateNeverPanicsOnNilEstimator(t *testing.T) {
	var e *Estimator
	assert.NotPanics(t, func() {
		_, _ = e.Estimate("text", "model")
	})
}
