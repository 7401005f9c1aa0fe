package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/lookatitude/docintel/domain"
)

// ChatRepo persists domain.ChatSession and domain.ChatMessage records.
type ChatRepo struct {
	db *sql.DB
}

func (r *ChatRepo) CreateSession(ctx context.Context, s domain.ChatSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, owner_user_id, collection_id, document_ids, message_count, summary_text, summary_facts, last_summarized, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, s.ID, s.OwnerUserID, nullIfEmpty(s.CollectionID), pq.Array(s.DocumentIDs), s.MessageCount, s.SummaryText, pq.Array(s.SummaryFacts), s.LastSummarized, s.CreatedAt, s.UpdatedAt)
	return wrapErr("postgres.chat.create_session", err)
}

func (r *ChatRepo) GetSession(ctx context.Context, id string) (domain.ChatSession, error) {
	var s domain.ChatSession
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, COALESCE(collection_id, ''), document_ids, message_count, summary_text, summary_facts, last_summarized, created_at, updated_at
		FROM chat_sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.OwnerUserID, &s.CollectionID, pq.Array(&s.DocumentIDs), &s.MessageCount, &s.SummaryText, pq.Array(&s.SummaryFacts), &s.LastSummarized, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.ChatSession{}, wrapErr("postgres.chat.get_session", err)
	}
	return s, nil
}

// UpdateSummary persists a recomputed rolling summary and advances the
// last-summarized watermark (spec §4.5 step 2).
func (r *ChatRepo) UpdateSummary(ctx context.Context, sessionID, summaryText string, facts []string, lastSummarized int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET summary_text = $1, summary_facts = $2, last_summarized = $3, updated_at = now() WHERE id = $4
	`, summaryText, pq.Array(facts), lastSummarized, sessionID)
	return wrapErr("postgres.chat.update_summary", err)
}

// AppendMessage inserts a message and increments the parent session's
// message_count atomically.
func (r *ChatRepo) AppendMessage(ctx context.Context, m domain.ChatMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("postgres.chat.append_message", err)
	}
	defer tx.Rollback()

	usage, err := json.Marshal(m.Usage)
	if err != nil {
		return err
	}
	comparison, err := json.Marshal(m.Comparison)
	if err != nil {
		return err
	}
	citationCtx, err := json.Marshal(m.CitationContext)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, source_chunk_ids, usage, comparison, citation_context, interrupted, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, m.ID, m.SessionID, m.Role, m.Content, pq.Array(m.SourceChunkIDs), usage, comparison, citationCtx, m.Interrupted, m.CreatedAt); err != nil {
		return wrapErr("postgres.chat.append_message", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET message_count = message_count + 1, updated_at = now() WHERE id = $1`, m.SessionID); err != nil {
		return wrapErr("postgres.chat.append_message", err)
	}
	return wrapErr("postgres.chat.append_message", tx.Commit())
}

// ListMessages returns a session's messages in order, optionally limited to
// the most recent n (n<=0 means all), used to assemble the verbatim window
// the orchestrator keeps alongside the rolling summary.
func (r *ChatRepo) ListMessages(ctx context.Context, sessionID string, n int) ([]domain.ChatMessage, error) {
	query := `SELECT id, session_id, role, content, source_chunk_ids, usage, comparison, citation_context, interrupted, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY created_at`
	args := []any{sessionID}
	if n > 0 {
		query += ` DESC LIMIT $2`
		args = []any{sessionID, n}
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("postgres.chat.list_messages", err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var usage, comparison, citationCtx []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, pq.Array(&m.SourceChunkIDs), &usage, &comparison, &citationCtx, &m.Interrupted, &m.CreatedAt); err != nil {
			return nil, wrapErr("postgres.chat.list_messages", err)
		}
		_ = json.Unmarshal(usage, &m.Usage)
		if len(comparison) > 0 {
			_ = json.Unmarshal(comparison, &m.Comparison)
		}
		_ = json.Unmarshal(citationCtx, &m.CitationContext)
		out = append(out, m)
	}
	if n > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, rows.Err()
}
