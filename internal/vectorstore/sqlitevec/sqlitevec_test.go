//go:build sqlite_vec && cgo

package sqlitevec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/vectorstore"
)

func TestUpsertAndSearchKnowledge(t *testing.T) {
	s, err := Open(":memory:", 4)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.UpsertKnowledge(ctx, vectorstore.Chunk{
		Source: "doc-1", Content: "react hooks guide", Vector: []float32{1, 0, 0, 0}, Framework: "react",
	}))
	require.NoError(t, s.UpsertKnowledge(ctx, vectorstore.Chunk{
		Source: "doc-2", Content: "vue composition api", Vector: []float32{0, 1, 0, 0}, Framework: "vue",
	}))

	results, err := s.SearchKnowledge(ctx, []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-1", results[0].Chunk.Source)
}

func TestSearchKnowledgeFilter(t *testing.T) {
	s, err := Open(":memory:", 4)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.UpsertKnowledge(ctx, vectorstore.Chunk{Source: "a", Vector: []float32{1, 0, 0, 0}, Framework: "react"}))
	require.NoError(t, s.UpsertKnowledge(ctx, vectorstore.Chunk{Source: "b", Vector: []float32{1, 0, 0, 0}, Framework: "vue"}))

	results, err := s.SearchKnowledge(ctx, []float32{1, 0, 0, 0}, 5, vectorstore.Filter{"framework": "vue"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Chunk.Source)
}

func TestUpsertAndSearchCodeContext(t *testing.T) {
	s, err := Open(":memory:", 4)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.UpsertCodeContext(ctx, vectorstore.CodeContextRecord{
		Path: "main.go", ChunkName: "main", Vector: []float32{1, 0, 0, 0}, Language: "go",
	}))

	results, err := s.SearchCodeContext(ctx, []float32{1, 0, 0, 0}, 5, vectorstore.Filter{"language": "go"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "main.go", results[0].Path)
}
