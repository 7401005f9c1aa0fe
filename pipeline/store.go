package pipeline

import (
	"context"

	"github.com/lookatitude/docintel/domain"
)

// JobStateStore is the persistence contract the runtime depends on,
// satisfied by storage/postgres.JobStateRepo. Expressed as an interface so
// the runtime can be exercised against an in-memory fake in tests without
// a database.
type JobStateStore interface {
	Create(ctx context.Context, j domain.JobState) error
	Get(ctx context.Context, id string) (domain.JobState, error)
	MarkStageComplete(ctx context.Context, id string, stage domain.JobStage, artifact domain.ArtifactPointer) error
	RecordError(ctx context.Context, id string, stage domain.JobStage, errType, message string, retryable bool) error
}

// memoryJobStateStore is a JobStateStore used by pipeline's own tests and
// by any in-process deployment that has no database (e.g. a local CLI
// run). Production wires storage/postgres.JobStateRepo instead.
type memoryJobStateStore struct {
	jobs map[string]domain.JobState
}

// NewMemoryJobStateStore constructs a process-local JobStateStore.
func NewMemoryJobStateStore() JobStateStore {
	return &memoryJobStateStore{jobs: make(map[string]domain.JobState)}
}

func (s *memoryJobStateStore) Create(_ context.Context, j domain.JobState) error {
	if err := j.ValidateParent(); err != nil {
		return err
	}
	s.jobs[j.ID] = j
	return nil
}

func (s *memoryJobStateStore) Get(_ context.Context, id string) (domain.JobState, error) {
	return s.jobs[id], nil
}

func (s *memoryJobStateStore) MarkStageComplete(_ context.Context, id string, stage domain.JobStage, artifact domain.ArtifactPointer) error {
	j := s.jobs[id]
	s.jobs[id] = j.MarkStageComplete(stage, artifact)
	return nil
}

func (s *memoryJobStateStore) RecordError(_ context.Context, id string, stage domain.JobStage, errType, message string, retryable bool) error {
	j := s.jobs[id]
	j.ErrorStage, j.ErrorMessage, j.ErrorType, j.ErrorRetryable = stage, message, errType, retryable
	s.jobs[id] = j
	return nil
}
