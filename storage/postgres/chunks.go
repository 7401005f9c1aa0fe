package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/lookatitude/docintel/domain"
)

// ChunkRepo persists domain.Chunk records, including the pgvector embedding
// column. The generated tsvector column is queried by this package's
// LexicalSearcher; vectorstore/providers/pgvector searches the separate
// chunk_vectors table rather than chunks.embedding.
type ChunkRepo struct {
	db *sql.DB
}

func (r *ChunkRepo) Create(ctx context.Context, c domain.Chunk) error {
	table, err := json.Marshal(c.Table)
	if err != nil {
		return err
	}
	kv, err := json.Marshal(c.KeyValuePairs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO chunks (
			chunk_id, document_id, index, kind, text, table_payload, key_value_pairs,
			page, page_start, page_end, section_id, section_heading, heading_hierarchy,
			is_continuation, parent_chunk_id, sequence, total_in_section, sibling_chunk_ids,
			linked_narrative_id, linked_table_ids, token_count,
			bbox_page, bbox_x0, bbox_y0, bbox_x1, bbox_y1
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	`,
		c.ChunkID, c.DocumentID, c.Index, c.Kind, c.Text, table, kv,
		c.Page, c.PageStart, c.PageEnd, c.SectionID, c.SectionHeading, pq.Array(c.HeadingHierarchy),
		c.IsContinuation, nullIfEmpty(c.ParentChunkID), c.Sequence, c.TotalInSection, pq.Array(c.SiblingChunkIDs),
		nullIfEmpty(c.LinkedNarrativeID), pq.Array(c.LinkedTableIDs), c.TokenCount,
		c.BBox.Page, c.BBox.X0, c.BBox.Y0, c.BBox.X1, c.BBox.Y1,
	)
	return wrapErr("postgres.chunks.create", err)
}

// SetEmbedding stores the embedding vector for a chunk once the embed stage
// completes. Embeddings are written separately from Create because chunking
// and embedding are distinct pipeline stages (spec §4.1).
func (r *ChunkRepo) SetEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chunks SET embedding = $1 WHERE chunk_id = $2`, pq.Array(embedding), chunkID)
	return wrapErr("postgres.chunks.set_embedding", err)
}

// ListByDocument returns all chunks for a document ordered by index.
func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, index, kind, text, table_payload, key_value_pairs,
			page, page_start, page_end, section_id, section_heading, heading_hierarchy,
			is_continuation, COALESCE(parent_chunk_id, ''), sequence, total_in_section, sibling_chunk_ids,
			COALESCE(linked_narrative_id, ''), linked_table_ids, token_count,
			bbox_page, bbox_x0, bbox_y0, bbox_x1, bbox_y1
		FROM chunks WHERE document_id = $1 ORDER BY index
	`, documentID)
	if err != nil {
		return nil, wrapErr("postgres.chunks.list_by_document", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var table, kv []byte
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.Index, &c.Kind, &c.Text, &table, &kv,
			&c.Page, &c.PageStart, &c.PageEnd, &c.SectionID, &c.SectionHeading, pq.Array(&c.HeadingHierarchy),
			&c.IsContinuation, &c.ParentChunkID, &c.Sequence, &c.TotalInSection, pq.Array(&c.SiblingChunkIDs),
			&c.LinkedNarrativeID, pq.Array(&c.LinkedTableIDs), &c.TokenCount,
			&c.BBox.Page, &c.BBox.X0, &c.BBox.Y0, &c.BBox.X1, &c.BBox.Y1,
		); err != nil {
			return nil, wrapErr("postgres.chunks.list_by_document", err)
		}
		if len(table) > 0 {
			if err := json.Unmarshal(table, &c.Table); err != nil {
				return nil, err
			}
		}
		if len(kv) > 0 {
			if err := json.Unmarshal(kv, &c.KeyValuePairs); err != nil {
				return nil, err
			}
		}
		c.BBox.Page = c.Page
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunks loads chunks by id, in no particular order, for
// retrieval.ChunkFetcher's structural-link expansion pass (spec §4.4 step 5).
// Missing ids are silently skipped rather than erroring, since a sibling or
// linked-chunk id can reference a chunk produced by a later, not-yet-run
// ingestion pass.
func (r *ChunkRepo) GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, index, kind, text, table_payload, key_value_pairs,
			page, page_start, page_end, section_id, section_heading, heading_hierarchy,
			is_continuation, COALESCE(parent_chunk_id, ''), sequence, total_in_section, sibling_chunk_ids,
			COALESCE(linked_narrative_id, ''), linked_table_ids, token_count,
			bbox_page, bbox_x0, bbox_y0, bbox_x1, bbox_y1
		FROM chunks WHERE chunk_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, wrapErr("postgres.chunks.get_chunks", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var table, kv []byte
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.Index, &c.Kind, &c.Text, &table, &kv,
			&c.Page, &c.PageStart, &c.PageEnd, &c.SectionID, &c.SectionHeading, pq.Array(&c.HeadingHierarchy),
			&c.IsContinuation, &c.ParentChunkID, &c.Sequence, &c.TotalInSection, pq.Array(&c.SiblingChunkIDs),
			&c.LinkedNarrativeID, pq.Array(&c.LinkedTableIDs), &c.TokenCount,
			&c.BBox.Page, &c.BBox.X0, &c.BBox.Y0, &c.BBox.X1, &c.BBox.Y1,
		); err != nil {
			return nil, wrapErr("postgres.chunks.get_chunks", err)
		}
		if len(table) > 0 {
			if err := json.Unmarshal(table, &c.Table); err != nil {
				return nil, err
			}
		}
		if len(kv) > 0 {
			if err := json.Unmarshal(kv, &c.KeyValuePairs); err != nil {
				return nil, err
			}
		}
		c.BBox.Page = c.Page
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime stores a zero time.Time as SQL NULL rather than the zero-value
// timestamp, used by tables with an optional completed_at column.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
