package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lookatitude/docintel/domain"
)

// JobStateRepo persists domain.JobState records that back the pipeline
// runtime's resumability and progress-stream features (spec §4.1, §6).
// Stage completion is stored as a JSONB map rather than fixed boolean
// columns, since the three pipeline kinds (extraction, workflow synthesis,
// template-fill) each define their own stage catalog.
type JobStateRepo struct {
	db *sql.DB
}

func (r *JobStateRepo) Create(ctx context.Context, j domain.JobState) error {
	if err := j.ValidateParent(); err != nil {
		return err
	}
	stages, err := json.Marshal(j.StagesComplete)
	if err != nil {
		return err
	}
	artifacts, err := json.Marshal(j.IntermediateArtifacts)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_states (
			id, document_id, collection_id, workflow_run_id, chat_session_id, current_stage,
			stages_complete, intermediate_artifacts, attempts, error_stage, error_message, error_type, error_retryable,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, j.ID, nullIfEmpty(j.DocumentID), nullIfEmpty(j.CollectionID), nullIfEmpty(j.WorkflowRunID), nullIfEmpty(j.ChatSessionID), j.CurrentStage,
		stages, artifacts, j.Attempts, j.ErrorStage, j.ErrorMessage, j.ErrorType, j.ErrorRetryable,
		j.CreatedAt, j.UpdatedAt)
	return wrapErr("postgres.job_states.create", err)
}

func (r *JobStateRepo) Get(ctx context.Context, id string) (domain.JobState, error) {
	var j domain.JobState
	var stages, artifacts []byte
	var documentID, collectionID, workflowRunID, chatSessionID sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, document_id, collection_id, workflow_run_id, chat_session_id, current_stage,
			stages_complete, intermediate_artifacts, attempts, error_stage, error_message, error_type, error_retryable,
			created_at, updated_at
		FROM job_states WHERE id = $1
	`, id).Scan(&j.ID, &documentID, &collectionID, &workflowRunID, &chatSessionID, &j.CurrentStage,
		&stages, &artifacts, &j.Attempts, &j.ErrorStage, &j.ErrorMessage, &j.ErrorType, &j.ErrorRetryable,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return domain.JobState{}, wrapErr("postgres.job_states.get", err)
	}
	j.DocumentID, j.CollectionID, j.WorkflowRunID, j.ChatSessionID = documentID.String, collectionID.String, workflowRunID.String, chatSessionID.String
	if len(stages) > 0 {
		_ = json.Unmarshal(stages, &j.StagesComplete)
	}
	if len(artifacts) > 0 {
		_ = json.Unmarshal(artifacts, &j.IntermediateArtifacts)
	}
	return j, nil
}

// MarkStageComplete flips the named stage's completion flag and records a
// resumable artifact pointer for it, used by the pipeline runtime when a
// stage finishes so a restart can skip straight to the next one.
func (r *JobStateRepo) MarkStageComplete(ctx context.Context, id string, stage domain.JobStage, artifact domain.ArtifactPointer) error {
	artifactJSON, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE job_states SET
			stages_complete = jsonb_set(COALESCE(stages_complete, '{}'::jsonb), $1, 'true'::jsonb, true),
			intermediate_artifacts = jsonb_set(COALESCE(intermediate_artifacts, '{}'::jsonb), $1, $2::jsonb, true),
			updated_at = now()
		WHERE id = $3
	`, "{"+string(stage)+"}", artifactJSON, id)
	return wrapErr("postgres.job_states.mark_stage_complete", err)
}

// RecordError persists a stage's terminal failure: a non-retryable error,
// or a retryable one once the pipeline's retry budget is exhausted
// (spec §4.1).
func (r *JobStateRepo) RecordError(ctx context.Context, id string, stage domain.JobStage, errType, message string, retryable bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE job_states SET error_stage = $1, error_message = $2, error_type = $3, error_retryable = $4, updated_at = now()
		WHERE id = $5
	`, stage, message, errType, retryable, id)
	return wrapErr("postgres.job_states.record_error", err)
}
