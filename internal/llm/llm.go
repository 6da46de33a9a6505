// Package llm defines the LLM provider adapter contract (spec.md §6). The
// core never implements a concrete provider; it depends only on this
// interface plus the reference adapters under llm/fake and llm/genai.
package llm

import (
	"context"
	"fmt"

	"codenerd/internal/budget"
)

// Message is one turn of a chat-style conversation.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Usage reports actual token counts from the provider, used to reconcile
// budget estimates (spec.md §4.2 update_from_metrics).
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ModelHandle is a single resolved model endpoint.
type ModelHandle interface {
	// ModelID returns the opaque model identifier this handle speaks for.
	ModelID() string
	// Respond issues messages to the model and returns its reply plus usage.
	Respond(ctx context.Context, messages []Message) (Message, Usage, error)
}

// ModelRegistry resolves a budget tier to a concrete ModelHandle, and
// implements budget.TierResolver so a Scope can use it directly.
type ModelRegistry interface {
	budget.TierResolver
	Resolve(tier budget.ModelTier) (ModelHandle, error)
}

// StaticRegistry maps tiers to handles fixed at construction time — the
// "injected model_registry: tier -> handle" design note from spec.md §9.
type StaticRegistry struct {
	handles map[budget.ModelTier]ModelHandle
}

// NewStaticRegistry builds a registry from a tier->handle map.
func NewStaticRegistry(handles map[budget.ModelTier]ModelHandle) *StaticRegistry {
	return &StaticRegistry{handles: handles}
}

// Resolve returns the handle registered for tier.
func (r *StaticRegistry) Resolve(tier budget.ModelTier) (ModelHandle, error) {
	h, ok := r.handles[tier]
	if !ok {
		return nil, fmt.Errorf("no model registered for tier %q", tier)
	}
	return h, nil
}

// ResolveModelID satisfies budget.TierResolver.
func (r *StaticRegistry) ResolveModelID(tier budget.ModelTier) (string, error) {
	h, err := r.Resolve(tier)
	if err != nil {
		return "", err
	}
	return h.ModelID(), nil
}
