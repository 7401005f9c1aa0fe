package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lookatitude/docintel/schema"
	"github.com/lookatitude/docintel/vectorstore"
)

// LexicalSearcher runs full-text search over the chunks table's generated
// tsvector column, implementing retrieval.LexicalSearcher's structural
// contract (storage/postgres does not import retrieval to avoid an upward
// dependency; Go interfaces are satisfied structurally).
type LexicalSearcher struct {
	db *sql.DB
}

// NewLexicalSearcher wraps an existing *sql.DB, normally Store.db shared
// with the rest of storage/postgres.
func NewLexicalSearcher(db *sql.DB) *LexicalSearcher {
	return &LexicalSearcher{db: db}
}

// Search ranks chunks by ts_rank against plainto_tsquery(query), the
// "Lexical" leg of the hybrid retriever (spec §4.4 step 2). The filter
// option, when present, is matched against document_id/section_id since
// chunks carries those as columns rather than a freeform metadata blob.
func (l *LexicalSearcher) Search(ctx context.Context, query string, k int, opts ...vectorstore.SearchOption) ([]schema.Document, error) {
	o := vectorstore.SearchOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	q := `
		SELECT chunk_id, document_id, section_id, section_heading, page, kind, text,
		       ts_rank(text_search, plainto_tsquery('english', $1)) AS rank
		FROM chunks
		WHERE text_search @@ plainto_tsquery('english', $1)`
	args := []any{query}
	if docID, ok := o.Filter["document_id"].(string); ok && docID != "" {
		args = append(args, docID)
		q += fmt.Sprintf(" AND document_id = $%d", len(args))
	}
	if sectionID, ok := o.Filter["section_id"].(string); ok && sectionID != "" {
		args = append(args, sectionID)
		q += fmt.Sprintf(" AND section_id = $%d", len(args))
	}
	q += fmt.Sprintf(" ORDER BY rank DESC LIMIT $%d", len(args)+1)
	args = append(args, k)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var out []schema.Document
	for rows.Next() {
		var id, documentID, sectionID, sectionHeading, kind, text string
		var page int
		var rank float64
		if err := rows.Scan(&id, &documentID, &sectionID, &sectionHeading, &page, &kind, &text, &rank); err != nil {
			return nil, err
		}
		d := schema.NewDocument(id, text, map[string]any{
			"document_id":     documentID,
			"section_id":      sectionID,
			"section_heading": sectionHeading,
			"page":            page,
			"kind":            kind,
		})
		d.Score = rank
		out = append(out, d)
	}
	return out, rows.Err()
}
