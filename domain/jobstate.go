package domain

import (
	"fmt"
	"time"
)

// JobStage identifies a unit of work tracked by a JobState. Each pipeline
// kind (extraction, workflow synthesis, template-fill) defines its own
// stage catalog; JobState tracks completion generically via StagesComplete
// rather than a fixed set of columns, since the three catalogs don't share
// a stage count or ordering.
type JobStage string

const (
	// Extraction pipeline (spec §4.1, §6).
	StageParse            JobStage = "parse"
	StageChunk            JobStage = "chunk"
	StageSummarize        JobStage = "summarize"
	StageExtractStructured JobStage = "extract_structured"
	StageStoreResult      JobStage = "store_result"

	// Workflow synthesis pipeline (spec §4.3).
	StagePrepareContext  JobStage = "prepare_context"
	StageGenerateArtifact JobStage = "generate_artifact"

	// Template-fill pipeline (spec §4.3, thin consumer of the same
	// primitives as workflow synthesis).
	StageAnalyzeTemplate JobStage = "analyze_template"
	StageDetectFields    JobStage = "detect_fields"
	StageAutoMap         JobStage = "auto_map"
	StageAwaitUserReview JobStage = "await_user_review"
	StageFill            JobStage = "fill"

	// Shared stages used by both the retrieval stack's own instrumentation
	// and by JobState records that back a chat comparison/clustering
	// operation rather than a document or workflow run.
	StageEmbed    JobStage = "embed"
	StageRetrieve JobStage = "retrieve"
	StageGenerate JobStage = "generate"
	StageValidate JobStage = "validate"
)

// JobEventKind is the discriminator of a streamed progress event (spec §6
// "Progress event stream": progress|complete|error|end).
type JobEventKind string

const (
	JobEventProgress JobEventKind = "progress"
	JobEventComplete JobEventKind = "complete"
	JobEventError    JobEventKind = "error"
	JobEventEnd      JobEventKind = "end"
)

// JobEvent is one message in a JobState's progress stream.
type JobEvent struct {
	Kind    JobEventKind
	Stage   JobStage
	Message string
	Percent float64
}

// JobState tracks the resumable progress of a single pipeline execution. It
// belongs to exactly one of a Document, Collection, WorkflowRun, or chat
// comparison/clustering operation — never more than one, never zero (spec §8
// invariant).
type JobState struct {
	ID string

	DocumentID    string
	CollectionID  string
	WorkflowRunID string
	ChatSessionID string

	CurrentStage JobStage

	// StagesComplete records, per stage name, whether that stage of this
	// job's pipeline has finished — the pipeline runtime consults it on
	// resume to skip stages already done, regardless of which of the three
	// stage catalogs this job's pipeline kind uses.
	StagesComplete map[JobStage]bool

	// IntermediateArtifacts holds a resumable pointer per completed stage,
	// keyed by JobStage, so a restarted run skips stages already done.
	IntermediateArtifacts map[JobStage]ArtifactPointer

	Attempts int

	ErrorStage     JobStage
	ErrorMessage   string
	ErrorType      string
	ErrorRetryable bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateParent enforces the exactly-one-parent invariant.
func (j JobState) ValidateParent() error {
	n := 0
	for _, id := range []string{j.DocumentID, j.CollectionID, j.WorkflowRunID, j.ChatSessionID} {
		if id != "" {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("job_state %s: expected exactly one parent reference, got %d", j.ID, n)
	}
	return nil
}

// IsStageComplete reports whether the given stage has already finished, used
// by the pipeline runtime to decide whether to skip re-executing it on
// resume.
func (j JobState) IsStageComplete(stage JobStage) bool {
	return j.StagesComplete[stage]
}

// MarkStageComplete returns a copy of j with stage flagged complete and its
// artifact pointer recorded, leaving j itself untouched.
func (j JobState) MarkStageComplete(stage JobStage, artifact ArtifactPointer) JobState {
	out := j
	out.StagesComplete = cloneStageBools(j.StagesComplete)
	out.StagesComplete[stage] = true
	out.IntermediateArtifacts = cloneArtifacts(j.IntermediateArtifacts)
	out.IntermediateArtifacts[stage] = artifact
	return out
}

func cloneStageBools(m map[JobStage]bool) map[JobStage]bool {
	out := make(map[JobStage]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneArtifacts(m map[JobStage]ArtifactPointer) map[JobStage]ArtifactPointer {
	out := make(map[JobStage]ArtifactPointer, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ExtractionStages is the ordered stage catalog for the structured
// extraction pipeline (spec §4.1).
var ExtractionStages = []JobStage{StageParse, StageChunk, StageSummarize, StageExtractStructured, StageStoreResult}

// WorkflowStages is the ordered stage catalog for the multi-document
// workflow synthesis pipeline (spec §4.3).
var WorkflowStages = []JobStage{StagePrepareContext, StageGenerateArtifact}

// TemplateFillStages is the ordered stage catalog for the template-fill
// pipeline.
var TemplateFillStages = []JobStage{StageAnalyzeTemplate, StageDetectFields, StageAutoMap, StageAwaitUserReview, StageFill}
