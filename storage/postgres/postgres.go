// Package postgres provides the lib/pq-backed persistence layer for
// documents, chunks, collections, chat sessions/messages, workflow
// templates/runs, extraction records, and job states. It favors plain
// database/sql with hand-written SQL over an ORM.
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/lookatitude/docintel/core"
)

// Config configures the connection pool.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store owns the connection pool and exposes one repository per entity
// family. Repositories share the pool rather than each opening their own.
type Store struct {
	db *sql.DB

	Documents   *DocumentRepo
	Chunks      *ChunkRepo
	Collections *CollectionRepo
	Chat        *ChatRepo
	Workflows   *WorkflowRepo
	Extractions *ExtractionRepo
	JobStates   *JobStateRepo
}

// Open connects to Postgres, applies pool limits, and verifies
// connectivity with a ping. Callers must call Close when done.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, core.NewError("postgres.open", core.ErrStorageFailed, "failed to open connection", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, core.NewError("postgres.open", core.ErrStorageFailed, "failed to ping database", err)
	}

	s := &Store{db: db}
	s.Documents = &DocumentRepo{db: db}
	s.Chunks = &ChunkRepo{db: db}
	s.Collections = &CollectionRepo{db: db}
	s.Chat = &ChatRepo{db: db}
	s.Workflows = &WorkflowRepo{db: db}
	s.Extractions = &ExtractionRepo{db: db}
	s.JobStates = &JobStateRepo{db: db}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the shared connection pool, for callers that need to wire a
// collaborator (e.g. retrieval.LexicalSearcher) directly against it rather
// than through one of Store's repositories.
func (s *Store) DB() *sql.DB {
	return s.db
}

// HealthCheck pings the database and returns the ping's error;
// cmd/docintel wraps it in an o11y.HealthCheckerFunc.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Schema is the logical table layout this package's queries assume (spec
// §6). Migrations are managed outside this module; this constant documents
// the contract the repositories below rely on, including the pgvector and
// full-text-search columns that vectorstore/retrieval read directly.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	owner_user_id   TEXT NOT NULL,
	org_id          TEXT NOT NULL,
	filename        TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	byte_size       BIGINT NOT NULL,
	page_count      INT NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	parser_used     TEXT NOT NULL DEFAULT '',
	parse_artifact  JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (org_id, content_hash)
);

CREATE TABLE IF NOT EXISTS collections (
	id            TEXT PRIMARY KEY,
	owner_user_id TEXT NOT NULL,
	org_id        TEXT NOT NULL,
	name          TEXT NOT NULL,
	document_ids  TEXT[] NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id             TEXT PRIMARY KEY,
	document_id          TEXT NOT NULL REFERENCES documents(id),
	index                INT NOT NULL,
	kind                 TEXT NOT NULL,
	text                 TEXT NOT NULL DEFAULT '',
	table_payload        JSONB,
	key_value_pairs      JSONB,
	page                 INT NOT NULL DEFAULT 0,
	page_start           INT NOT NULL DEFAULT 0,
	page_end             INT NOT NULL DEFAULT 0,
	section_id           TEXT NOT NULL DEFAULT '',
	section_heading      TEXT NOT NULL DEFAULT '',
	heading_hierarchy    TEXT[] NOT NULL DEFAULT '{}',
	is_continuation      BOOLEAN NOT NULL DEFAULT false,
	parent_chunk_id      TEXT,
	sequence             INT NOT NULL DEFAULT 0,
	total_in_section     INT NOT NULL DEFAULT 0,
	sibling_chunk_ids    TEXT[] NOT NULL DEFAULT '{}',
	linked_narrative_id  TEXT,
	linked_table_ids     TEXT[] NOT NULL DEFAULT '{}',
	token_count          INT NOT NULL DEFAULT 0,
	bbox_page            INT NOT NULL DEFAULT 0,
	bbox_x0              DOUBLE PRECISION NOT NULL DEFAULT 0,
	bbox_y0              DOUBLE PRECISION NOT NULL DEFAULT 0,
	bbox_x1              DOUBLE PRECISION NOT NULL DEFAULT 0,
	bbox_y1              DOUBLE PRECISION NOT NULL DEFAULT 0,
	embedding            vector(1536), -- pgvector extension; dimension per embed provider
	text_search          tsvector GENERATED ALWAYS AS (to_tsvector('english', text)) STORED
);
CREATE INDEX IF NOT EXISTS chunks_document_id_idx ON chunks(document_id);
CREATE INDEX IF NOT EXISTS chunks_text_search_idx ON chunks USING GIN(text_search);
CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING ivfflat (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id               TEXT PRIMARY KEY,
	owner_user_id    TEXT NOT NULL,
	collection_id    TEXT,
	document_ids     TEXT[] NOT NULL DEFAULT '{}',
	message_count    INT NOT NULL DEFAULT 0,
	summary_text     TEXT NOT NULL DEFAULT '',
	summary_facts    TEXT[] NOT NULL DEFAULT '{}',
	last_summarized  INT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL REFERENCES chat_sessions(id),
	role              TEXT NOT NULL,
	content           TEXT NOT NULL,
	source_chunk_ids  TEXT[] NOT NULL DEFAULT '{}',
	usage             JSONB,
	comparison        JSONB,
	citation_context  JSONB,
	interrupted       BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chat_messages_session_id_idx ON chat_messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS workflow_templates (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	version          INT NOT NULL,
	active           BOOLEAN NOT NULL DEFAULT true,
	description      TEXT NOT NULL DEFAULT '',
	variables_schema JSONB,
	output_schema    JSONB,
	retrieval        JSONB,
	prompt_generator TEXT NOT NULL,
	min_documents    INT NOT NULL DEFAULT 0,
	max_documents    INT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, version)
);

CREATE TABLE IF NOT EXISTS workflow_runs (
	id                TEXT PRIMARY KEY,
	template_id       TEXT NOT NULL REFERENCES workflow_templates(id),
	owner_user_id     TEXT NOT NULL,
	document_ids      TEXT[] NOT NULL DEFAULT '{}',
	inputs            JSONB,
	mode              TEXT NOT NULL,
	strategy          TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	artifact          JSONB,
	validation_errors TEXT[] NOT NULL DEFAULT '{}',
	citation_count    INT NOT NULL DEFAULT 0,
	attempts          INT NOT NULL DEFAULT 0,
	prompt_tokens     INT NOT NULL DEFAULT 0,
	completion_tokens INT NOT NULL DEFAULT 0,
	cache_read_tokens INT NOT NULL DEFAULT 0,
	estimated_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS workflow_runs_owner_idx ON workflow_runs(owner_user_id, created_at);

CREATE TABLE IF NOT EXISTS extraction_records (
	id                    TEXT PRIMARY KEY,
	document_id           TEXT NOT NULL REFERENCES documents(id),
	template_id           TEXT NOT NULL REFERENCES workflow_templates(id),
	run_id                TEXT NOT NULL,
	owner_user_id         TEXT,
	org_id                TEXT,
	status                TEXT NOT NULL DEFAULT 'pending',
	fields                JSONB,
	error                 TEXT NOT NULL DEFAULT '',
	artifact_inline       BYTEA,
	artifact_backend      TEXT,
	artifact_key          TEXT,
	artifact_size         BIGINT NOT NULL DEFAULT 0,
	artifact_content_type TEXT,
	parser_used           TEXT,
	content_hash          TEXT NOT NULL,
	from_cache            BOOLEAN NOT NULL DEFAULT false,
	from_history          BOOLEAN NOT NULL DEFAULT false,
	prompt_tokens         INTEGER NOT NULL DEFAULT 0,
	completion_tokens     INTEGER NOT NULL DEFAULT 0,
	estimated_cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at          TIMESTAMPTZ,
	UNIQUE (document_id, template_id, content_hash)
);

CREATE TABLE IF NOT EXISTS job_states (
	id                  TEXT PRIMARY KEY,
	document_id         TEXT,
	collection_id       TEXT,
	workflow_run_id     TEXT,
	chat_session_id     TEXT,
	current_stage       TEXT NOT NULL,
	stages_complete     JSONB,
	intermediate_artifacts JSONB,
	attempts            INT NOT NULL DEFAULT 0,
	error_stage         TEXT NOT NULL DEFAULT '',
	error_message       TEXT NOT NULL DEFAULT '',
	error_type          TEXT NOT NULL DEFAULT '',
	error_retryable     BOOLEAN NOT NULL DEFAULT false,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (
		(CASE WHEN document_id     IS NOT NULL THEN 1 ELSE 0 END) +
		(CASE WHEN collection_id   IS NOT NULL THEN 1 ELSE 0 END) +
		(CASE WHEN workflow_run_id IS NOT NULL THEN 1 ELSE 0 END) +
		(CASE WHEN chat_session_id IS NOT NULL THEN 1 ELSE 0 END) = 1
	)
);

-- chunk_vectors is queried directly by vectorstore/providers/pgvector; it is
-- denormalized from chunks (content duplicated) so ANN search can run
-- without joining the main chunks table on the hot path.
CREATE TABLE IF NOT EXISTS chunk_vectors (
	id        TEXT PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  JSONB,
	embedding vector(1536)
);
CREATE INDEX IF NOT EXISTS chunk_vectors_embedding_idx ON chunk_vectors USING ivfflat (embedding vector_l2_ops);

CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	expires_at TIMESTAMPTZ
);
`

// wrapErr wraps a raw sql error as a core.Error, mapping sql.ErrNoRows to
// ErrNotFound so callers can use errors.Is(err, core.NewError("", core.ErrNotFound, "", nil)).
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return core.NewError(op, core.ErrNotFound, "record not found", err)
	}
	return core.NewError(op, core.ErrStorageFailed, "postgres operation failed", err)
}

// wrapErrCode builds a core.Error with an explicit named code, for cases
// where the caller has already classified the failure (duplicate key,
// invalid transition) rather than relying on the raw driver error.
func wrapErrCode(op string, code core.ErrorCode, err error) error {
	return core.NewError(op, code, "postgres operation rejected", err)
}

// requireOrgMatch is a defense-in-depth check against a handler that scoped
// the request context to one org (core.WithOrg) but was passed a record
// belonging to another — a bug class distinct from (and not caught by) the
// explicit org_id column every org-scoped query already filters or inserts
// by. When ctx carries no org (a background job, a migration, most tests)
// the check is skipped entirely.
func requireOrgMatch(ctx context.Context, op, recordOrgID string) error {
	want, ok := core.OrgFromContext(ctx)
	if !ok {
		return nil
	}
	if string(want) != recordOrgID {
		return core.NewError(op, core.ErrAuth, "record does not belong to the context's org", nil)
	}
	return nil
}
