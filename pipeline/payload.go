// Package pipeline drives a JobState through its pipeline kind's ordered
// stage catalog: each stage is an idempotent task consuming and returning a
// Payload, progress and resumability are tracked via domain.JobState, and
// retryable failures are retried in place with exponential backoff. The broker
// abstraction and the executor/handle shape for the in-process runtime
// follow a Temporal-backed workflow engine's conventions.
package pipeline

import (
	enginectx "github.com/lookatitude/docintel/engine/context"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/engine/generate"
)

// Payload is the value threaded through a run's ordered stages. Each stage
// reads whatever prior stages wrote and returns an augmented copy; fields
// unused by a given pipeline kind are simply left zero.
type Payload struct {
	JobID    string
	ParentID string // document, workflow run, or template-fill id

	DocumentID   string
	CollectionID string

	// Extraction pipeline fields.
	TemplateID  string
	OwnerUserID string
	OrgID       string
	Inputs      map[string]any
	ContentHash string
	DocumentPath string
	PDFType      string
	ParserTier   string
	ParserOutput ParserOutput
	ParsedText   string
	Chunks       []domain.Chunk
	Summary      string
	Fields       map[string]any

	// Workflow synthesis / template-fill fields.
	Template    domain.WorkflowTemplate
	DocumentIDs []string
	Variables   map[string]any
	Assembled   enginectx.Assembled
	Generated   generate.Result

	// Template-fill specific.
	DetectedFields map[string]string
	FieldMapping   map[string]string
	ReviewApproved bool

	Artifact domain.ArtifactPointer
}
