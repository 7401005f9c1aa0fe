package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lookatitude/docintel/domain"
)

// ExtractionRepo persists domain.ExtractionRecord values.
type ExtractionRepo struct {
	db *sql.DB
}

const extractionColumns = `id, document_id, template_id, run_id, owner_user_id, org_id,
	status, fields, error, artifact_inline, artifact_backend, artifact_key, artifact_size, artifact_content_type,
	parser_used, content_hash, from_cache, from_history,
	prompt_tokens, completion_tokens, estimated_cost_usd, created_at, completed_at`

// Create inserts an extraction record. The (document_id, template_id,
// content_hash) uniqueness constraint lets callers treat a duplicate-key
// error as "already extracted" rather than re-running the template.
func (r *ExtractionRepo) Create(ctx context.Context, e domain.ExtractionRecord) error {
	if e.OrgID != "" {
		if err := requireOrgMatch(ctx, "postgres.extractions.create", e.OrgID); err != nil {
			return err
		}
	}
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO extraction_records (`+extractionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`,
		e.ID, e.DocumentID, e.TemplateID, e.RunID, nullIfEmpty(e.OwnerUserID), nullIfEmpty(e.OrgID),
		e.Status, fields, e.Error, e.Artifact.Inline, nullIfEmpty(e.Artifact.Backend), nullIfEmpty(e.Artifact.Key), e.Artifact.Size, nullIfEmpty(e.Artifact.ContentType),
		nullIfEmpty(e.ParserUsed), e.ContentHash, e.FromCache, e.FromHistory,
		e.PromptTokens, e.CompletionTokens, e.EstimatedCostUSD, e.CreatedAt, nullTime(e.CompletedAt),
	)
	return wrapErr("postgres.extractions.create", err)
}

func (r *ExtractionRepo) FindExisting(ctx context.Context, documentID, templateID, contentHash string) (domain.ExtractionRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+extractionColumns+`
		FROM extraction_records WHERE document_id = $1 AND template_id = $2 AND content_hash = $3
	`, documentID, templateID, contentHash)
	e, err := scanExtraction(row)
	if err == sql.ErrNoRows {
		return domain.ExtractionRecord{}, false, nil
	}
	if err != nil {
		return domain.ExtractionRecord{}, false, wrapErr("postgres.extractions.find_existing", err)
	}
	return e, true, nil
}

func (r *ExtractionRepo) ListByDocument(ctx context.Context, documentID string) ([]domain.ExtractionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+extractionColumns+`
		FROM extraction_records WHERE document_id = $1 ORDER BY created_at DESC
	`, documentID)
	if err != nil {
		return nil, wrapErr("postgres.extractions.list_by_document", err)
	}
	defer rows.Close()

	var out []domain.ExtractionRecord
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, wrapErr("postgres.extractions.list_by_document", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExtraction(row rowScanner) (domain.ExtractionRecord, error) {
	var e domain.ExtractionRecord
	var fields []byte
	var ownerUserID, orgID, backend, key, contentType, parserUsed sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.DocumentID, &e.TemplateID, &e.RunID, &ownerUserID, &orgID,
		&e.Status, &fields, &e.Error, &e.Artifact.Inline, &backend, &key, &e.Artifact.Size, &contentType,
		&parserUsed, &e.ContentHash, &e.FromCache, &e.FromHistory,
		&e.PromptTokens, &e.CompletionTokens, &e.EstimatedCostUSD, &e.CreatedAt, &completedAt,
	)
	if err != nil {
		return domain.ExtractionRecord{}, err
	}
	_ = json.Unmarshal(fields, &e.Fields)
	e.OwnerUserID = ownerUserID.String
	e.OrgID = orgID.String
	e.Artifact.Backend = backend.String
	e.Artifact.Key = key.String
	e.Artifact.ContentType = contentType.String
	e.ParserUsed = parserUsed.String
	if completedAt.Valid {
		e.CompletedAt = completedAt.Time
	}
	return e, nil
}
