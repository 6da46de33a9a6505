// Package knowledge implements the Knowledge Retriever (spec.md §4.7): a
// stateless façade over a vector store and embedding model that turns a
// free-text query into a deterministic block of formatted context chunks,
// loosely modeled on the teacher's tiered context builder
// (internal/retrieval/tiered_context.go) but addressed against a real
// vector store instead of sparse keyword search.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"codenerd/internal/budget"
	"codenerd/internal/llm"
	"codenerd/internal/logging"
	"codenerd/internal/vectorstore"
)

var log = logging.L("knowledge")

// Retriever is the stateless façade described in spec.md §4.7.
type Retriever struct {
	Store    vectorstore.Store
	Embedder vectorstore.Embedder
	// LLM, if set, backs SynthesizeContext's optional summarization pass.
	LLM llm.ModelRegistry
	// SynthesizeTier selects which registry tier performs the summarization.
	SynthesizeTier budget.ModelTier
}

// New builds a Retriever. llmRegistry may be nil, in which case
// SynthesizeContext always falls back to raw formatted chunks.
func New(store vectorstore.Store, embedder vectorstore.Embedder, llmRegistry llm.ModelRegistry) *Retriever {
	return &Retriever{
		Store:          store,
		Embedder:       embedder,
		LLM:            llmRegistry,
		SynthesizeTier: budget.TierSmall,
	}
}

// RetrieveContext embeds query, runs a top-k search against the knowledge
// base, and formats the results as a deterministic text block. Returns ""
// on any failure — embedding errors and search errors are logged but never
// propagated, per spec.md §4.7.
func (r *Retriever) RetrieveContext(ctx context.Context, query string, k int) string {
	chunks := r.search(ctx, query, k, nil)
	if len(chunks) == 0 {
		return ""
	}
	return formatChunks(chunks)
}

// search embeds query and returns the top-k scored chunks, or nil on any
// failure. Shared by RetrieveContext and RetrieveCompositeContext.
func (r *Retriever) search(ctx context.Context, query string, k int, filter vectorstore.Filter) []vectorstore.ScoredChunk {
	if query == "" || k <= 0 {
		return nil
	}
	vec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		log.Debugw("embed failed", "query", query, "error", err)
		return nil
	}
	chunks, err := r.Store.SearchKnowledge(ctx, vec, k, filter)
	if err != nil {
		log.Debugw("search failed", "query", query, "error", err)
		return nil
	}
	return chunks
}

// RetrieveCompositeContext retrieves context for a main query (priority)
// plus a set of supporting sub-queries, deduplicating by exact chunk
// content and stopping once the approximate token count (chars/4) of the
// accumulated chunks reaches maxTokens, per spec.md §4.7.
func (r *Retriever) RetrieveCompositeContext(ctx context.Context, mainQuery string, subQueries []string, kMain, kSub, maxTokens int) string {
	seen := make(map[string]bool)
	var ordered []vectorstore.Chunk

	approxTokens := func() int {
		total := 0
		for _, c := range ordered {
			total += len(c.Content) / 4
		}
		return total
	}

	for _, sc := range r.search(ctx, mainQuery, kMain, nil) {
		if seen[sc.Chunk.Content] {
			continue
		}
		seen[sc.Chunk.Content] = true
		ordered = append(ordered, sc.Chunk)
	}

	for _, sub := range subQueries {
		if maxTokens > 0 && approxTokens() >= maxTokens {
			break
		}
		for _, sc := range r.search(ctx, sub, kSub, nil) {
			if maxTokens > 0 && approxTokens() >= maxTokens {
				break
			}
			if seen[sc.Chunk.Content] {
				continue
			}
			seen[sc.Chunk.Content] = true
			ordered = append(ordered, sc.Chunk)
		}
	}

	if len(ordered) == 0 {
		return ""
	}
	return formatChunksRaw(ordered)
}

// SynthesizeContext optionally summarizes chunks via the LLM registry's
// configured tier, falling back to the raw formatted chunk block when no
// registry is configured or the model call fails.
func (r *Retriever) SynthesizeContext(ctx context.Context, query string, chunks []vectorstore.Chunk) string {
	raw := formatChunksRaw(chunks)
	if raw == "" {
		return ""
	}
	if r.LLM == nil {
		return raw
	}

	handle, err := r.LLM.Resolve(r.SynthesizeTier)
	if err != nil {
		log.Debugw("synthesize: resolve model failed", "error", err)
		return raw
	}

	prompt := fmt.Sprintf("Summarize the following retrieved context so it directly answers: %q\n\n%s", query, raw)
	reply, _, err := handle.Respond(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil || strings.TrimSpace(reply.Content) == "" {
		log.Debugw("synthesize: model call failed, falling back to raw context", "error", err)
		return raw
	}
	return reply.Content
}

// formatChunks renders scored chunks as "[KNOWLEDGE i] SOURCE: ...\n...".
func formatChunks(scored []vectorstore.ScoredChunk) string {
	chunks := make([]vectorstore.Chunk, len(scored))
	for i, sc := range scored {
		chunks[i] = sc.Chunk
	}
	return formatChunksRaw(chunks)
}

func formatChunksRaw(chunks []vectorstore.Chunk) string {
	var blocks []string
	for i, c := range chunks {
		blocks = append(blocks, fmt.Sprintf("[KNOWLEDGE %d] SOURCE: %s\n%s", i+1, c.Source, c.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// CacheKey builds the session-scoped knowledge cache key described in
// spec.md §4.7: "{task}::{system_type}::{architecture_pattern}".
func CacheKey(task, systemType, architecturePattern string) string {
	return fmt.Sprintf("%s::%s::%s", task, systemType, architecturePattern)
}
