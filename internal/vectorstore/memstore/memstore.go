// Package memstore is an in-memory vectorstore.Store used by tests and
// when the configured vector-store backend is "memory".
package memstore

import (
	"context"
	"sort"
	"sync"

	"codenerd/internal/vectorstore"
)

// Store is a goroutine-safe in-memory vector store.
type Store struct {
	mu        sync.RWMutex
	knowledge map[string]vectorstore.Chunk
	code      map[string]vectorstore.CodeContextRecord
}

// New builds an empty in-memory store.
func New() *Store {
	return &Store{
		knowledge: make(map[string]vectorstore.Chunk),
		code:      make(map[string]vectorstore.CodeContextRecord),
	}
}

func (s *Store) UpsertKnowledge(_ context.Context, chunk vectorstore.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledge[chunk.Source] = chunk
	return nil
}

func (s *Store) SearchKnowledge(_ context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]vectorstore.ScoredChunk, 0, len(s.knowledge))
	for _, chunk := range s.knowledge {
		if !matchesKnowledgeFilter(chunk, filter) {
			continue
		}
		score := vectorstore.CosineSimilarity(vector, chunk.Vector)
		results = append(results, vectorstore.ScoredChunk{Chunk: chunk, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func matchesKnowledgeFilter(chunk vectorstore.Chunk, filter vectorstore.Filter) bool {
	for key, want := range filter {
		var got string
		switch key {
		case "framework":
			got = chunk.Framework
		case "document_type":
			got = chunk.DocumentType
		case "knowledge_space":
			got = chunk.KnowledgeSpace
		case "version":
			got = chunk.Version
		default:
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

func (s *Store) UpsertCodeContext(_ context.Context, rec vectorstore.CodeContextRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code[rec.Path+"::"+rec.ChunkName] = rec
	return nil
}

func (s *Store) SearchCodeContext(_ context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.CodeContextRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rec   vectorstore.CodeContextRecord
		score float64
	}
	results := make([]scored, 0, len(s.code))
	for _, rec := range s.code {
		if lang, ok := filter["language"]; ok && rec.Language != lang {
			continue
		}
		results = append(results, scored{rec: rec, score: vectorstore.CosineSimilarity(vector, rec.Vector)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	out := make([]vectorstore.CodeContextRecord, 0, len(results))
	for i, r := range results {
		if k > 0 && i >= k {
			break
		}
		out = append(out, r.rec)
	}
	return out, nil
}
