package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
)

func newTestRuntime() (*Runtime, JobStateStore) {
	store := NewMemoryJobStateStore()
	rt := NewRuntime(store, NewTracker())
	rt.Sleep = func(time.Duration) {} // no real waiting in tests
	return rt, store
}

func freshJob(t *testing.T, store JobStateStore, id string) domain.JobState {
	t.Helper()
	j := domain.JobState{ID: id, DocumentID: "doc-1", StagesComplete: map[domain.JobStage]bool{}, IntermediateArtifacts: map[domain.JobStage]domain.ArtifactPointer{}}
	require.NoError(t, store.Create(context.Background(), j))
	return j
}

func TestRuntime_RunsStagesInOrder(t *testing.T) {
	rt, store := newTestRuntime()
	job := freshJob(t, store, "job-1")

	var order []string
	catalog := Catalog{
		domain.StageParse: func(ctx context.Context, p Payload) (Payload, error) { order = append(order, "parse"); return p, nil },
		domain.StageChunk: func(ctx context.Context, p Payload) (Payload, error) { order = append(order, "chunk"); return p, nil },
	}

	_, finalJob, err := rt.Run(context.Background(), job, []domain.JobStage{domain.StageParse, domain.StageChunk}, catalog, Payload{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"parse", "chunk"}, order)
	assert.True(t, finalJob.IsStageComplete(domain.StageParse))
	assert.True(t, finalJob.IsStageComplete(domain.StageChunk))
}

func TestRuntime_SkipsAlreadyCompletedStages(t *testing.T) {
	rt, store := newTestRuntime()
	job := freshJob(t, store, "job-2")
	job = job.MarkStageComplete(domain.StageParse, domain.ArtifactPointer{})

	var ran []string
	catalog := Catalog{
		domain.StageParse: func(ctx context.Context, p Payload) (Payload, error) { ran = append(ran, "parse"); return p, nil },
		domain.StageChunk: func(ctx context.Context, p Payload) (Payload, error) { ran = append(ran, "chunk"); return p, nil },
	}

	_, _, err := rt.Run(context.Background(), job, []domain.JobStage{domain.StageParse, domain.StageChunk}, catalog, Payload{JobID: "job-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk"}, ran)
}

func TestRuntime_RetriesRetryableFailureThenSucceeds(t *testing.T) {
	rt, store := newTestRuntime()
	job := freshJob(t, store, "job-3")

	attempts := 0
	catalog := Catalog{
		domain.StageParse: func(ctx context.Context, p Payload) (Payload, error) {
			attempts++
			if attempts < 2 {
				return p, core.NewError("test", core.ErrTimeout, "transient", nil)
			}
			return p, nil
		},
	}

	_, finalJob, err := rt.Run(context.Background(), job, []domain.JobStage{domain.StageParse}, catalog, Payload{JobID: "job-3"})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.True(t, finalJob.IsStageComplete(domain.StageParse))
}

func TestRuntime_NonRetryableFailureStopsImmediately(t *testing.T) {
	rt, store := newTestRuntime()
	job := freshJob(t, store, "job-4")

	attempts := 0
	catalog := Catalog{
		domain.StageParse: func(ctx context.Context, p Payload) (Payload, error) {
			attempts++
			return p, core.NewError("test", core.ErrParse, "bad file", nil)
		},
	}

	_, _, err := rt.Run(context.Background(), job, []domain.JobStage{domain.StageParse}, catalog, Payload{JobID: "job-4"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	persisted, getErr := store.Get(context.Background(), "job-4")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StageParse, persisted.ErrorStage)
	assert.False(t, persisted.ErrorRetryable)
}

func TestRuntime_ExhaustsRetryBudgetOnPersistentRetryableFailure(t *testing.T) {
	rt, store := newTestRuntime()
	job := freshJob(t, store, "job-5")

	attempts := 0
	catalog := Catalog{
		domain.StageParse: func(ctx context.Context, p Payload) (Payload, error) {
			attempts++
			return p, core.NewError("test", core.ErrRateLimit, "still throttled", nil)
		},
	}

	_, _, err := rt.Run(context.Background(), job, []domain.JobStage{domain.StageParse}, catalog, Payload{JobID: "job-5"})
	require.Error(t, err)
	assert.Equal(t, maxAttemptsPerTask, attempts)
}

func TestRuntime_AwaitUserReviewPauses(t *testing.T) {
	rt, store := newTestRuntime()
	job := freshJob(t, store, "job-6")

	catalog := Catalog{
		domain.StageAwaitUserReview: awaitUserReviewTask(),
		domain.StageFill: func(ctx context.Context, p Payload) (Payload, error) { return p, nil },
	}

	_, pausedJob, err := rt.Run(context.Background(), job, []domain.JobStage{domain.StageAwaitUserReview, domain.StageFill}, catalog, Payload{JobID: "job-6"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAwaitingReview()))
	assert.False(t, pausedJob.IsStageComplete(domain.StageAwaitUserReview))

	_, finalJob, err := rt.Resume(context.Background(), pausedJob, []domain.JobStage{domain.StageAwaitUserReview, domain.StageFill}, catalog, Payload{JobID: "job-6", ReviewApproved: true})
	require.NoError(t, err)
	assert.True(t, finalJob.IsStageComplete(domain.StageAwaitUserReview))
	assert.True(t, finalJob.IsStageComplete(domain.StageFill))
}

func TestRuntime_EmitsProgressCompleteEnd(t *testing.T) {
	rt, store := newTestRuntime()
	job := freshJob(t, store, "job-7")
	catalog := Catalog{domain.StageParse: func(ctx context.Context, p Payload) (Payload, error) { return p, nil }}

	_, _, err := rt.Run(context.Background(), job, []domain.JobStage{domain.StageParse}, catalog, Payload{JobID: "job-7"})
	require.NoError(t, err)

	// A reconnecting subscriber replays the full snapshot immediately
	// (spec §4.1 "Progress streaming"), ending with complete then end.
	_, snapshot, unsub := rt.Tracker.Subscribe("job-7")
	defer unsub()
	require.GreaterOrEqual(t, len(snapshot), 2)
	assert.Equal(t, domain.JobEventComplete, snapshot[len(snapshot)-2].Kind)
	assert.Equal(t, domain.JobEventEnd, snapshot[len(snapshot)-1].Kind)
}
