package domain

import "time"

// ExtractionStatus tracks an ExtractionRecord through the structured
// extraction pipeline, independent of the generic WorkflowRun status enum
// since extraction has its own short-circuit and caching semantics.
type ExtractionStatus string

const (
	ExtractionPending   ExtractionStatus = "pending"
	ExtractionRunning   ExtractionStatus = "running"
	ExtractionCompleted ExtractionStatus = "completed"
	ExtractionFailed    ExtractionStatus = "failed"
)

// ExtractionRecord is the persisted result of running a data-extraction
// template (WorkflowTemplate with a structured OutputSchema) against one
// document, independent of the general WorkflowRun history so extraction
// results can be queried per-document without scanning all runs.
type ExtractionRecord struct {
	ID          string
	DocumentID  string
	TemplateID  string
	RunID       string
	OwnerUserID string
	OrgID       string

	Status  ExtractionStatus
	Fields  map[string]any // decoded, schema-validated output
	Error   string         // populated when Status == ExtractionFailed

	Artifact    ArtifactPointer // full rendered output, when larger than the inline threshold
	ParserUsed  string          // parser backend that produced the source document's text layer

	ContentHash string // hash of DocumentID+TemplateID+Inputs, for dedup short-circuit
	FromCache   bool   // true when served from an existing record with a matching ContentHash
	FromHistory bool   // true when served from a prior run of the same document+template, not a fresh generation

	PromptTokens     int
	CompletionTokens int
	EstimatedCostUSD float64

	CreatedAt   time.Time
	CompletedAt time.Time
}
