//go:build !sqlite_vec || !cgo

// Package sqlitevec, without the sqlite_vec build tag (or without cgo),
// exposes only a stub Store so callers that select the backend via
// configuration still link; building with real persistence requires
// `-tags sqlite_vec` on a cgo-enabled toolchain.
package sqlitevec

import (
	"context"
	"fmt"

	"codenerd/internal/vectorstore"
)

var errNotBuilt = fmt.Errorf("sqlitevec: built without the sqlite_vec tag (and/or cgo); rebuild with -tags sqlite_vec or set vector_store.backend: memory")

// Store is never populated in this build configuration.
type Store struct{}

// Open always fails: this binary was built without the sqlite_vec tag.
func Open(path string, dim int) (*Store, error) {
	return nil, errNotBuilt
}

func (s *Store) Close() error { return nil }

func (s *Store) UpsertKnowledge(ctx context.Context, chunk vectorstore.Chunk) error {
	return errNotBuilt
}

func (s *Store) SearchKnowledge(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.ScoredChunk, error) {
	return nil, errNotBuilt
}

func (s *Store) UpsertCodeContext(ctx context.Context, rec vectorstore.CodeContextRecord) error {
	return errNotBuilt
}

func (s *Store) SearchCodeContext(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.CodeContextRecord, error) {
	return nil, errNotBuilt
}
