//go:build sqlite_vec && cgo

// Package sqlitevec is the real vectorstore.Store adapter over a SQLite
// database with the sqlite-vec extension loaded, for approximate nearest
// neighbour search that survives process restarts. It requires cgo and
// the sqlite_vec build tag, since sqlite-vec's extension loader only
// registers against the cgo mattn/go-sqlite3 driver, not a pure-Go one.
package sqlitevec

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"codenerd/internal/logging"
	"codenerd/internal/vectorstore"
)

var log = logging.L("vectorstore.sqlitevec")

// Store is a sqlite-vec backed vectorstore.Store. A single *sql.DB backs
// two logical tables: knowledge_base and code_context, each paired with a
// vec0 virtual table for ANN search plus a plain table for full record
// retrieval (vec0 tables only carry the vector and a handful of scalar
// columns cheaply).
type Store struct {
	db  *sql.DB
	dim int
}

func init() {
	vec.Auto()
}

// Open creates/opens a sqlite-vec database at path and provisions its
// schema for the given embedding dimensionality.
func Open(path string, dim int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: open: %w", err)
	}
	s := &Store{db: db, dim: dim}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS knowledge_base (
			source TEXT PRIMARY KEY,
			content TEXT,
			framework TEXT,
			version TEXT,
			document_type TEXT,
			knowledge_space TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS code_context (
			path TEXT,
			chunk_name TEXT,
			chunk_type TEXT,
			content TEXT,
			start_line INTEGER,
			end_line INTEGER,
			content_hash TEXT,
			language TEXT,
			lint_errors TEXT,
			dependencies TEXT,
			PRIMARY KEY (path, chunk_name)
		)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_vec USING vec0(embedding float[%d], source TEXT)`, s.dim),
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS code_context_vec USING vec0(embedding float[%d], id TEXT)`, s.dim),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlitevec: migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertKnowledge(_ context.Context, chunk vectorstore.Chunk) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO knowledge_base (source, content, framework, version, document_type, knowledge_space)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		chunk.Source, chunk.Content, chunk.Framework, chunk.Version, chunk.DocumentType, chunk.KnowledgeSpace,
	)
	if err != nil {
		return fmt.Errorf("sqlitevec: upsert knowledge: %w", err)
	}
	if len(chunk.Vector) != s.dim {
		log.Debugw("skipping vec_index write: dimension mismatch", "want", s.dim, "got", len(chunk.Vector))
		return nil
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO knowledge_vec (rowid, embedding, source) VALUES (
			(SELECT rowid FROM knowledge_vec WHERE source = ?), ?, ?)`,
		chunk.Source, encodeFloat32(chunk.Vector), chunk.Source,
	)
	if err != nil {
		log.Warnw("vec_index upsert failed", "source", chunk.Source, "err", err)
	}
	return nil
}

func (s *Store) SearchKnowledge(_ context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.ScoredChunk, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.db.Query(
		`SELECT source, distance FROM knowledge_vec WHERE embedding MATCH ? ORDER BY distance LIMIT ?`,
		encodeFloat32(vector), k*4,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: search knowledge: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.ScoredChunk
	for rows.Next() {
		var source string
		var distance float64
		if err := rows.Scan(&source, &distance); err != nil {
			continue
		}
		chunk, ok, err := s.loadKnowledge(source)
		if err != nil || !ok || !matchesFilter(chunk, filter) {
			continue
		}
		out = append(out, vectorstore.ScoredChunk{Chunk: chunk, Score: 1 - distance})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (s *Store) loadKnowledge(source string) (vectorstore.Chunk, bool, error) {
	var c vectorstore.Chunk
	c.Source = source
	err := s.db.QueryRow(
		`SELECT content, framework, version, document_type, knowledge_space FROM knowledge_base WHERE source = ?`,
		source,
	).Scan(&c.Content, &c.Framework, &c.Version, &c.DocumentType, &c.KnowledgeSpace)
	if err == sql.ErrNoRows {
		return c, false, nil
	}
	if err != nil {
		return c, false, err
	}
	return c, true, nil
}

func matchesFilter(c vectorstore.Chunk, filter vectorstore.Filter) bool {
	for key, want := range filter {
		var got string
		switch key {
		case "framework":
			got = c.Framework
		case "version":
			got = c.Version
		case "document_type":
			got = c.DocumentType
		case "knowledge_space":
			got = c.KnowledgeSpace
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
	lint, _ := json.Marshal(rec.LintErrors)
	deps, _ := json.Marshal(rec.Dependencies)
	id := rec.Path + "::" + rec.ChunkName

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO code_context
			(path, chunk_name, chunk_type, content, start_line, end_line, content_hash, language, lint_errors, dependencies)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.ChunkName, rec.ChunkType, rec.Content, rec.StartLine, rec.EndLine, rec.ContentHash, rec.Language, string(lint), string(deps),
	)
	if err != nil {
		return fmt.Errorf("sqlitevec: upsert code context: %w", err)
	}
	if len(rec.Vector) != s.dim {
		return nil
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO code_context_vec (rowid, embedding, id) VALUES (
			(SELECT rowid FROM code_context_vec WHERE id = ?), ?, ?)`,
		id, encodeFloat32(rec.Vector), id,
	)
	if err != nil {
		log.Warnw("vec_index upsert failed", "id", id, "err", err)
	}
	return nil
}

func (s *Store) SearchCodeContext(_ context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.CodeContextRecord, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.db.Query(
		`SELECT id, distance FROM code_context_vec WHERE embedding MATCH ? ORDER BY distance LIMIT ?`,
		encodeFloat32(vector), k*4,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: search code context: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.CodeContextRecord
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			continue
		}
		parts := strings.SplitN(id, "::", 2)
		if len(parts) != 2 {
			continue
		}
		rec, ok, err := s.loadCodeContext(parts[0], parts[1])
		if err != nil || !ok {
			continue
		}
		if lang, has := filter["language"]; has && rec.Language != lang {
			continue
		}
		out = append(out, rec)
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (s *Store) loadCodeContext(path, chunkName string) (vectorstore.CodeContextRecord, bool, error) {
	var rec vectorstore.CodeContextRecord
	var lint, deps string
	err := s.db.QueryRow(
		`SELECT path, chunk_name, chunk_type, content, start_line, end_line, content_hash, language, lint_errors, dependencies
		 FROM code_context WHERE path = ? AND chunk_name = ?`,
		path, chunkName,
	).Scan(&rec.Path, &rec.ChunkName, &rec.ChunkType, &rec.Content, &rec.StartLine, &rec.EndLine, &rec.ContentHash, &rec.Language, &lint, &deps)
	if err == sql.ErrNoRows {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	_ = json.Unmarshal([]byte(lint), &rec.LintErrors)
	_ = json.Unmarshal([]byte(deps), &rec.Dependencies)
	return rec, true, nil
}

func encodeFloat32(vec []float32) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}
