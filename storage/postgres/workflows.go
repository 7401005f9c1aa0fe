package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/lookatitude/docintel/domain"
)

// WorkflowRepo persists domain.WorkflowTemplate and domain.WorkflowRun
// records.
type WorkflowRepo struct {
	db *sql.DB
}

func (r *WorkflowRepo) CreateTemplate(ctx context.Context, t domain.WorkflowTemplate) error {
	vars, err := json.Marshal(t.VariablesSchema)
	if err != nil {
		return err
	}
	out, err := json.Marshal(t.OutputSchema)
	if err != nil {
		return err
	}
	retrieval, err := json.Marshal(t.Retrieval)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_templates (id, name, version, active, description, variables_schema, output_schema, retrieval, prompt_generator, min_documents, max_documents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, t.ID, t.Name, t.Version, t.Active, t.Description, vars, out, retrieval, t.PromptGenerator, t.MinDocuments, t.MaxDocuments, t.CreatedAt, t.UpdatedAt)
	return wrapErr("postgres.workflows.create_template", err)
}

// GetActiveTemplateByName returns the active version of the named template.
func (r *WorkflowRepo) GetActiveTemplateByName(ctx context.Context, name string) (domain.WorkflowTemplate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, version, active, description, variables_schema, output_schema, retrieval, prompt_generator, min_documents, max_documents, created_at, updated_at
		FROM workflow_templates WHERE name = $1 AND active = true ORDER BY version DESC LIMIT 1
	`, name)
	return scanTemplate(row)
}

func (r *WorkflowRepo) GetTemplate(ctx context.Context, id string) (domain.WorkflowTemplate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, version, active, description, variables_schema, output_schema, retrieval, prompt_generator, min_documents, max_documents, created_at, updated_at
		FROM workflow_templates WHERE id = $1
	`, id)
	return scanTemplate(row)
}

func scanTemplate(row rowScanner) (domain.WorkflowTemplate, error) {
	var t domain.WorkflowTemplate
	var vars, out, retrieval []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Version, &t.Active, &t.Description, &vars, &out, &retrieval, &t.PromptGenerator, &t.MinDocuments, &t.MaxDocuments, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.WorkflowTemplate{}, wrapErr("postgres.workflows.scan_template", err)
	}
	_ = json.Unmarshal(vars, &t.VariablesSchema)
	_ = json.Unmarshal(out, &t.OutputSchema)
	_ = json.Unmarshal(retrieval, &t.Retrieval)
	return t, nil
}

func (r *WorkflowRepo) CreateRun(ctx context.Context, run domain.WorkflowRun) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return err
	}
	artifact, err := json.Marshal(run.Artifact)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, template_id, owner_user_id, document_ids, inputs, mode, strategy, status, artifact, validation_errors, citation_count, attempts, prompt_tokens, completion_tokens, cache_read_tokens, estimated_cost_usd, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, run.ID, run.TemplateID, run.OwnerUserID, pq.Array(run.DocumentIDs), inputs, run.Mode, run.Strategy, run.Status, artifact, pq.Array(run.ValidationErrors), run.CitationCount, run.Attempts, run.PromptTokens, run.CompletionTokens, run.CacheReadTokens, run.EstimatedCostUSD, run.CreatedAt, run.UpdatedAt)
	return wrapErr("postgres.workflows.create_run", err)
}

// UpdateRunStatus advances a run's status and persists its artifact,
// validation errors, and usage counters in one statement, matching how the
// engine closes out each generation/validation attempt (spec §4.3.2).
func (r *WorkflowRepo) UpdateRunStatus(ctx context.Context, run domain.WorkflowRun) error {
	artifact, err := json.Marshal(run.Artifact)
	if err != nil {
		return err
	}
	var completedAt any
	if !run.CompletedAt.IsZero() {
		completedAt = run.CompletedAt
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE workflow_runs SET
			status = $1, artifact = $2, validation_errors = $3, citation_count = $4, attempts = $5,
			prompt_tokens = $6, completion_tokens = $7, cache_read_tokens = $8, estimated_cost_usd = $9,
			updated_at = now(), completed_at = $10
		WHERE id = $11
	`, run.Status, artifact, pq.Array(run.ValidationErrors), run.CitationCount, run.Attempts,
		run.PromptTokens, run.CompletionTokens, run.CacheReadTokens, run.EstimatedCostUSD,
		completedAt, run.ID)
	return wrapErr("postgres.workflows.update_run_status", err)
}

func (r *WorkflowRepo) GetRun(ctx context.Context, id string) (domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var inputs, artifact []byte
	var completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, template_id, owner_user_id, document_ids, inputs, mode, strategy, status, artifact, validation_errors, citation_count, attempts, prompt_tokens, completion_tokens, cache_read_tokens, estimated_cost_usd, created_at, updated_at, completed_at
		FROM workflow_runs WHERE id = $1
	`, id).Scan(&run.ID, &run.TemplateID, &run.OwnerUserID, pq.Array(&run.DocumentIDs), &inputs, &run.Mode, &run.Strategy, &run.Status, &artifact, pq.Array(&run.ValidationErrors), &run.CitationCount, &run.Attempts, &run.PromptTokens, &run.CompletionTokens, &run.CacheReadTokens, &run.EstimatedCostUSD, &run.CreatedAt, &run.UpdatedAt, &completedAt)
	if err != nil {
		return domain.WorkflowRun{}, wrapErr("postgres.workflows.get_run", err)
	}
	_ = json.Unmarshal(inputs, &run.Inputs)
	_ = json.Unmarshal(artifact, &run.Artifact)
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	return run, nil
}
