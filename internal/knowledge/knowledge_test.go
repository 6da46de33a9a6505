package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/budget"
	"codenerd/internal/llm"
	"codenerd/internal/llm/fake"
	"codenerd/internal/vectorstore"
	"codenerd/internal/vectorstore/hashembed"
	"codenerd/internal/vectorstore/memstore"
)

func seedStore(t *testing.T, store *memstore.Store, embedder *hashembed.Embedder, entries map[string]string) {
	t.Helper()
	for source, content := range entries {
		vec, err := embedder.Embed(context.Background(), content)
		require.NoError(t, err)
		require.NoError(t, store.UpsertKnowledge(context.Background(), vectorstore.Chunk{
			Source:  source,
			Content: content,
			Vector:  vec,
		}))
	}
}

func TestRetrieveContextFormatsChunks(t *testing.T) {
	store := memstore.New()
	embedder := hashembed.New(32)
	seedStore(t, store, embedder, map[string]string{
		"docs/auth.md": "Use JWT bearer tokens for authentication.",
	})
	r := New(store, embedder, nil)

	got := r.RetrieveContext(context.Background(), "Use JWT bearer tokens for authentication.", 3)
	assert.Contains(t, got, "[KNOWLEDGE 1] SOURCE: docs/auth.md")
	assert.Contains(t, got, "Use JWT bearer tokens for authentication.")
}

func TestRetrieveContextEmptyOnNoMatches(t *testing.T) {
	store := memstore.New()
	embedder := hashembed.New(32)
	r := New(store, embedder, nil)

	got := r.RetrieveContext(context.Background(), "anything", 3)
	assert.Equal(t, "", got)
}

func TestRetrieveContextEmptyOnBlankQuery(t *testing.T) {
	store := memstore.New()
	embedder := hashembed.New(32)
	r := New(store, embedder, nil)

	assert.Equal(t, "", r.RetrieveContext(context.Background(), "", 3))
}

func TestRetrieveCompositeContextDedupsAndPrioritizesMain(t *testing.T) {
	store := memstore.New()
	embedder := hashembed.New(32)
	seedStore(t, store, embedder, map[string]string{
		"a": "Primary: how to configure the router.",
		"b": "Secondary: router middleware ordering.",
	})
	r := New(store, embedder, nil)

	got := r.RetrieveCompositeContext(context.Background(),
		"Primary: how to configure the router.",
		[]string{"Secondary: router middleware ordering.", "Primary: how to configure the router."},
		3, 3, 0)

	assert.Equal(t, 1, strings.Count(got, "how to configure the router"))
	assert.True(t, strings.Index(got, "Primary") < strings.Index(got, "Secondary"))
}

func TestRetrieveCompositeContextStopsAtTokenBudget(t *testing.T) {
	store := memstore.New()
	embedder := hashembed.New(32)
	longContent := strings.Repeat("x", 400) // ~100 tokens at chars/4
	seedStore(t, store, embedder, map[string]string{
		"main": "main query content",
		"sub":  longContent,
	})
	r := New(store, embedder, nil)

	got := r.RetrieveCompositeContext(context.Background(), "main query content", []string{longContent}, 1, 3, 4)
	assert.Contains(t, got, "main query content")
	assert.NotContains(t, got, longContent)
}

func TestSynthesizeContextFallsBackWithoutLLM(t *testing.T) {
	r := New(memstore.New(), hashembed.New(32), nil)
	chunks := []vectorstore.Chunk{{Source: "s", Content: "raw content"}}

	got := r.SynthesizeContext(context.Background(), "q", chunks)
	assert.Contains(t, got, "raw content")
	assert.Contains(t, got, "[KNOWLEDGE 1] SOURCE: s")
}

func TestSynthesizeContextUsesModel(t *testing.T) {
	handle := fake.New("fake-model", "a tidy summary")
	registry := llm.NewStaticRegistry(map[budget.ModelTier]llm.ModelHandle{budget.TierSmall: handle})
	r := New(memstore.New(), hashembed.New(32), registry)

	chunks := []vectorstore.Chunk{{Source: "s", Content: "raw content"}}
	got := r.SynthesizeContext(context.Background(), "q", chunks)
	assert.Equal(t, "a tidy summary", got)
	assert.Equal(t, 1, handle.CallCount())
}

func TestSynthesizeContextEmptyChunksReturnsEmpty(t *testing.T) {
	r := New(memstore.New(), hashembed.New(32), nil)
	assert.Equal(t, "", r.SynthesizeContext(context.Background(), "q", nil))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "task::web_app::mvc", CacheKey("task", "web_app", "mvc"))
}
