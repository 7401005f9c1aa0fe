package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
)

// DocumentRepo persists domain.Document records.
type DocumentRepo struct {
	db *sql.DB
}

// Create inserts a new document. It returns a core.ErrDuplicate-coded error
// if a document with the same (org_id, content_hash) already exists, so
// callers can short-circuit duplicate uploads (spec §4.1).
func (r *DocumentRepo) Create(ctx context.Context, d domain.Document) error {
	if err := requireOrgMatch(ctx, "postgres.documents.create", d.OrgID); err != nil {
		return err
	}
	artifact, err := json.Marshal(d.ParseArtifact)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_user_id, org_id, filename, content_hash, byte_size, page_count, status, parser_used, parse_artifact, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, d.ID, d.OwnerUserID, d.OrgID, d.Filename, d.ContentHash, d.ByteSize, d.PageCount, d.Status, d.ParserUsed, artifact, d.CreatedAt, d.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return wrapErrCode("postgres.documents.create", core.ErrDuplicate, err)
	}
	return wrapErr("postgres.documents.create", err)
}

// FindByContentHash looks up an existing document by org and content hash,
// used to short-circuit re-ingestion of identical bytes.
func (r *DocumentRepo) FindByContentHash(ctx context.Context, orgID, hash string) (domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, org_id, filename, content_hash, byte_size, page_count, status, parser_used, parse_artifact, created_at, updated_at
		FROM documents WHERE org_id = $1 AND content_hash = $2
	`, orgID, hash)
	return scanDocument(row)
}

// Get fetches a document by id. If ctx carries an org (core.WithOrg), a
// document belonging to a different org is reported as not found rather
// than returned, so a leaked id from another org never surfaces data.
func (r *DocumentRepo) Get(ctx context.Context, id string) (domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, org_id, filename, content_hash, byte_size, page_count, status, parser_used, parse_artifact, created_at, updated_at
		FROM documents WHERE id = $1
	`, id)
	d, err := scanDocument(row)
	if err != nil {
		return domain.Document{}, err
	}
	if err := requireOrgMatch(ctx, "postgres.documents.get", d.OrgID); err != nil {
		return domain.Document{}, wrapErr("postgres.documents.get", sql.ErrNoRows)
	}
	return d, nil
}

// UpdateStatus transitions a document's status, rejecting the update if
// domain.CanTransition disallows the move.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id string, from, to domain.DocumentStatus) error {
	if !domain.CanTransition(from, to) {
		return wrapErrCode("postgres.documents.update_status", core.ErrInvalidInput, nil)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET status = $1, updated_at = now() WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return wrapErr("postgres.documents.update_status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("postgres.documents.update_status", err)
	}
	if n == 0 {
		return wrapErr("postgres.documents.update_status", sql.ErrNoRows)
	}
	return nil
}

// SetParseArtifact records the parser used and the resulting artifact
// pointer once the parse stage completes.
func (r *DocumentRepo) SetParseArtifact(ctx context.Context, id, parserUsed string, artifact domain.ArtifactPointer, pageCount int) error {
	b, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE documents SET parser_used = $1, parse_artifact = $2, page_count = $3, updated_at = now() WHERE id = $4
	`, parserUsed, b, pageCount, id)
	return wrapErr("postgres.documents.set_parse_artifact", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var d domain.Document
	var artifact []byte
	if err := row.Scan(&d.ID, &d.OwnerUserID, &d.OrgID, &d.Filename, &d.ContentHash, &d.ByteSize, &d.PageCount, &d.Status, &d.ParserUsed, &artifact, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return domain.Document{}, wrapErr("postgres.documents.scan", err)
	}
	if len(artifact) > 0 {
		if err := json.Unmarshal(artifact, &d.ParseArtifact); err != nil {
			return domain.Document{}, err
		}
	}
	return d, nil
}
