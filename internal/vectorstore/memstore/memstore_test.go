package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/vectorstore"
)

func TestUpsertAndSearchKnowledge(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.UpsertKnowledge(ctx, vectorstore.Chunk{
		Source: "a", Content: "react hooks", Vector: []float32{1, 0, 0}, Framework: "react",
	}))
	require.NoError(t, s.UpsertKnowledge(ctx, vectorstore.Chunk{
		Source: "b", Content: "vue composition", Vector: []float32{0, 1, 0}, Framework: "vue",
	}))

	results, err := s.SearchKnowledge(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.Source)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchKnowledgeFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.UpsertKnowledge(ctx, vectorstore.Chunk{Source: "a", Vector: []float32{1, 0}, Framework: "react"}))
	require.NoError(t, s.UpsertKnowledge(ctx, vectorstore.Chunk{Source: "b", Vector: []float32{1, 0}, Framework: "vue"}))

	results, err := s.SearchKnowledge(ctx, []float32{1, 0}, 5, vectorstore.Filter{"framework": "vue"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Chunk.Source)
}

func TestSearchKnowledgeTopK(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpsertKnowledge(ctx, vectorstore.Chunk{
			Source: string(rune('a' + i)), Vector: []float32{float32(i), 1},
		}))
	}
	results, err := s.SearchKnowledge(ctx, []float32{4, 1}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestUpsertAndSearchCodeContext(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.UpsertCodeContext(ctx, vectorstore.CodeContextRecord{
		Path: "main.go", ChunkName: "main", Vector: []float32{1, 0}, Language: "go",
	}))
	require.NoError(t, s.UpsertCodeContext(ctx, vectorstore.CodeContextRecord{
		Path: "main.py", ChunkName: "main", Vector: []float32{1, 0}, Language: "python",
	}))

	results, err := s.SearchCodeContext(ctx, []float32{1, 0}, 5, vectorstore.Filter{"language": "go"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "main.go", results[0].Path)
}

func TestUpsertCodeContextReplacesSameKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.UpsertCodeContext(ctx, vectorstore.CodeContextRecord{Path: "x.go", ChunkName: "f", Content: "v1"}))
	require.NoError(t, s.UpsertCodeContext(ctx, vectorstore.CodeContextRecord{Path: "x.go", ChunkName: "f", Content: "v2"}))
	assert.Len(t, s.code, 1)
	assert.Equal(t, "v2", s.code["x.go::f"].Content)
}
