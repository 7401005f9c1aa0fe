package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/domain"
)

func TestInProcessBroker_EnqueueRunsRegisteredPipeline(t *testing.T) {
	store := NewMemoryJobStateStore()
	require.NoError(t, store.Create(context.Background(), domain.JobState{
		ID: "job-1", DocumentID: "doc-1",
		StagesComplete:        map[domain.JobStage]bool{},
		IntermediateArtifacts: map[domain.JobStage]domain.ArtifactPointer{},
	}))
	rt := NewRuntime(store, NewTracker())

	ran := false
	broker := &InProcessBroker{
		Runtime: rt,
		Pipelines: map[string]RegisteredPipeline{
			"extraction": {
				Order: []domain.JobStage{domain.StageParse},
				Tasks: Catalog{domain.StageParse: func(ctx context.Context, p Payload) (Payload, error) { ran = true; return p, nil }},
			},
		},
	}

	runID, err := broker.Enqueue(context.Background(), "q", JobSubmission{JobID: "job-1", PipelineID: "extraction"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", runID)
	assert.True(t, ran)
}

func TestInProcessBroker_UnknownPipelineIsConfigurationError(t *testing.T) {
	broker := &InProcessBroker{Runtime: NewRuntime(NewMemoryJobStateStore(), NewTracker()), Pipelines: map[string]RegisteredPipeline{}}
	_, err := broker.Enqueue(context.Background(), "q", JobSubmission{JobID: "job-1", PipelineID: "does-not-exist"})
	require.Error(t, err)
}
