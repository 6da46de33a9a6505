// Package tokencost counts tokens and estimates the dollar cost of a call to
// a named LLM model (spec component C1).
package tokencost

import (
	"math"
	"unicode/utf8"
)

// charsPerToken calibrates the heuristic counter when no real tokenizer
// table is available. 4.0 characters per token is the commonly used
// approximation for English prose and source code alike.
const charsPerToken = 4.0

// DefaultPrice is used when a model has no entry in the price table.
const DefaultPrice = 0.001 // $ per 1000 tokens

// Cost is an additive (tokens, cost) pair — the monoid described in spec.md §3.
type Cost struct {
	Tokens int64
	Amount float64
}

// Add returns the sum of two costs.
func (c Cost) Add(other Cost) Cost {
	return Cost{Tokens: c.Tokens + other.Tokens, Amount: round6(c.Amount + other.Amount)}
}

// Zero is the additive identity.
func Zero() Cost { return Cost{} }

// Tokenizer counts tokens in text. A nil table falls back to the heuristic.
type Tokenizer interface {
	Count(text string) int
}

// heuristicTokenizer implements Tokenizer using the chars-per-token ratio.
// Used whenever a model-specific tokenization table is unavailable.
type heuristicTokenizer struct{}

func (heuristicTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / charsPerToken))
}

// Estimator counts tokens and computes cost from a per-model price table.
type Estimator struct {
	// PriceTable maps model id -> price per 1000 tokens.
	PriceTable map[string]float64
	// DefaultPriceOverride, if non-zero, replaces DefaultPrice.
	DefaultPriceOverride float64
	// Tokenizers optionally maps model id -> a model-family-specific counter.
	// Models without an entry use the heuristic counter.
	Tokenizers map[string]Tokenizer
}

// NewEstimator builds an Estimator over the given price table.
func NewEstimator(priceTable map[string]float64) *Estimator {
	if priceTable == nil {
		priceTable = map[string]float64{}
	}
	return &Estimator{PriceTable: priceTable}
}

// Count returns the token count for text under the given model's tokenizer,
// or 0 with the caller expected to substitute the heuristic, per spec.md §4.1.
// Estimator.Count always substitutes the heuristic itself so callers never
// have to.
func (e *Estimator) Count(text, modelID string) int {
	if e != nil && e.Tokenizers != nil {
		if tk, ok := e.Tokenizers[modelID]; ok && tk != nil {
			if n := tk.Count(text); n > 0 || text == "" {
				return n
			}
		}
	}
	return heuristicTokenizer{}.Count(text)
}

// price returns the per-1000-token price for modelID, falling back to the default.
func (e *Estimator) price(modelID string) float64 {
	if e != nil && e.PriceTable != nil {
		if p, ok := e.PriceTable[modelID]; ok {
			return p
		}
	}
	if e != nil && e.DefaultPriceOverride != 0 {
		return e.DefaultPriceOverride
	}
	return DefaultPrice
}

// Estimate returns the token count and cost for text under modelID.
// Cost is rounded to 6 decimal places. Never raises: missing models use the
// default price.
func (e *Estimator) Estimate(text, modelID string) (int64, float64) {
	tokens := int64(e.Count(text, modelID))
	cost := round6(float64(tokens) / 1000.0 * e.price(modelID))
	return tokens, cost
}

// EstimateCost is a convenience wrapper returning a Cost value.
func (e *Estimator) EstimateCost(text, modelID string) Cost {
	tokens, cost := e.Estimate(text, modelID)
	return Cost{Tokens: tokens, Amount: cost}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
