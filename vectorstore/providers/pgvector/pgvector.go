// Package pgvector provides a PostgreSQL/pgvector-backed VectorStore over
// the chunk_vectors table declared in storage/postgres's Schema, grounded on the pack's
// pkg/vectorstores/providers/pgvector store (embedding-to-text encoding,
// "<->" distance ORDER BY queries, and the sql.DB + lib/pq wiring).
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/lookatitude/docintel/config"
	"github.com/lookatitude/docintel/schema"
	"github.com/lookatitude/docintel/vectorstore"
)

func init() {
	vectorstore.Register("pgvector", func(cfg config.ProviderConfig) (vectorstore.VectorStore, error) {
		dsn, _ := config.GetOption[string](cfg, "dsn")
		dims, _ := config.GetOption[int](cfg, "dimensions")
		if dims == 0 {
			dims = 1536
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		return New(db, dims), nil
	})
}

// Store is a VectorStore backed by a chunk_vectors table with a pgvector
// embedding column.
type Store struct {
	db   *sql.DB
	dims int
}

var _ vectorstore.VectorStore = (*Store)(nil)

// New wraps an existing *sql.DB. Callers that already have a
// storage/postgres.Store should share its pool rather than opening a second
// connection.
func New(db *sql.DB, dimensions int) *Store {
	return &Store{db: db, dims: dimensions}
}

// Add upserts documents and their embeddings into chunk_vectors, keyed by
// document id (the schema.Document.ID, which for this system is a chunk id).
func (s *Store) Add(ctx context.Context, docs []schema.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("vectorstore/pgvector: docs (%d) and embeddings (%d) length mismatch", len(docs), len(embeddings))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_vectors (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Content, meta, vectorLiteral(embeddings[i])); err != nil {
			return fmt.Errorf("vectorstore/pgvector: insert %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// Search runs a nearest-neighbor query using pgvector's "<->" (L2 distance)
// operator, converting distance d to the bounded similarity score
// 1/(1+d). Metadata filtering is applied with a JSONB containment check and
// the threshold is applied to that score; strategies other than L2 are not
// supported by this provider and are ignored, since pgvector indexes are
// built for one distance metric at a time.
func (s *Store) Search(ctx context.Context, query []float32, k int, opts ...vectorstore.SearchOption) ([]schema.Document, error) {
	o := vectorstore.SearchOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	q := `SELECT id, content, metadata, embedding <-> $1 AS distance FROM chunk_vectors`
	args := []any{vectorLiteral(query)}
	if len(o.Filter) > 0 {
		filterJSON, err := json.Marshal(o.Filter)
		if err != nil {
			return nil, err
		}
		q += ` WHERE metadata @> $2`
		args = append(args, filterJSON)
	}
	q += fmt.Sprintf(" ORDER BY distance LIMIT $%d", len(args)+1)
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/pgvector: search: %w", err)
	}
	defer rows.Close()

	var out []schema.Document
	for rows.Next() {
		var d schema.Document
		var meta []byte
		var distance float64
		if err := rows.Scan(&d.ID, &d.Content, &meta, &distance); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(meta, &d.Metadata)
		d.Score = 1 / (1 + distance)
		if o.Threshold > 0 && d.Score < o.Threshold {
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete removes rows by id.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM chunk_vectors WHERE id IN (%s)", strings.Join(placeholders, ",")), args...)
	return err
}

func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
