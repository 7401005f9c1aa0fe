package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
)

// Task is one stage's unit of work: an idempotent function from payload to
// augmented payload (spec §4.1 "Contract for each task").
type Task func(ctx context.Context, p Payload) (Payload, error)

// Catalog maps a pipeline kind's stage names to the task that implements
// each one.
type Catalog map[domain.JobStage]Task

// errAwaitingReview is returned by the await_user_review stage's task to
// tell the runtime to pause the run rather than treat the stage as failed;
// it is never persisted as a job error.
var errAwaitingReview = errors.New("pipeline: awaiting user review")

// ErrAwaitingReview signals the caller that a template-fill run paused at
// its review gate and must be resumed via Runtime.Resume once the caller
// approves or edits the field mapping.
func ErrAwaitingReview() error { return errAwaitingReview }

// Runtime drives a JobState through an ordered stage catalog, persisting
// progress via a JobStateStore and emitting events via a Tracker (spec
// §4.1). A single Runtime is shared across every pipeline kind; the stage
// order and task implementations vary per kind via the Catalog and order
// arguments passed to Run.
type Runtime struct {
	Store   JobStateStore
	Tracker *Tracker
	Sleep   func(time.Duration) // overridable for tests; defaults to time.Sleep
}

// NewRuntime constructs a Runtime backed by store and tracker.
func NewRuntime(store JobStateStore, tracker *Tracker) *Runtime {
	return &Runtime{Store: store, Tracker: tracker, Sleep: time.Sleep}
}

// Run executes every stage in order that job has not already completed,
// retrying each task up to maxAttemptsPerTask times with exponential
// backoff when its failure is classified retryable (spec §4.1). It returns
// the final payload and job state; a non-nil error means the job reached a
// terminal failed state (or, for the template-fill catalog, paused awaiting
// review — check errors.Is(err, ErrAwaitingReview()) to distinguish the two).
func (r *Runtime) Run(ctx context.Context, job domain.JobState, order []domain.JobStage, tasks Catalog, payload Payload) (Payload, domain.JobState, error) {
	if payload.OrgID != "" {
		ctx = core.WithOrg(ctx, core.OrgID(payload.OrgID))
	}
	for i, stage := range order {
		if job.IsStageComplete(stage) {
			continue
		}

		task, ok := tasks[stage]
		if !ok {
			err := core.NewError("pipeline.Runtime.Run", core.ErrConfiguration, "no task registered for stage "+string(stage), nil)
			r.fail(ctx, job, stage, err)
			return payload, job, err
		}

		percent := float64(i) / float64(len(order))
		r.Tracker.Emit(job.ID, domain.JobEvent{Kind: domain.JobEventProgress, Stage: stage, Message: "starting " + string(stage), Percent: percent})

		var (
			result Payload
			err    error
		)
		for attempt := 1; attempt <= maxAttemptsPerTask; attempt++ {
			result, err = task(ctx, payload)
			if err == nil {
				break
			}
			if errors.Is(err, errAwaitingReview) {
				return payload, job, err
			}

			errType, retryable := classify(err)
			if !retryable || attempt == maxAttemptsPerTask {
				r.fail(ctx, job, stage, err)
				return payload, job, err
			}
			r.Tracker.Emit(job.ID, domain.JobEvent{Kind: domain.JobEventProgress, Stage: stage,
				Message: "retrying after " + errType + " (attempt " + strconv.Itoa(attempt) + ")", Percent: percent})
			r.Sleep(backoffFor(attempt))
		}

		payload = result
		if err := r.Store.MarkStageComplete(ctx, job.ID, stage, payload.Artifact); err != nil {
			wrapped := core.NewError("pipeline.Runtime.Run", core.ErrStorage, "failed to record stage completion", err)
			r.fail(ctx, job, stage, wrapped)
			return payload, job, wrapped
		}
		job = job.MarkStageComplete(stage, payload.Artifact)
	}

	r.Tracker.Emit(job.ID, domain.JobEvent{Kind: domain.JobEventComplete, Message: "run complete", Percent: 1})
	r.Tracker.Emit(job.ID, domain.JobEvent{Kind: domain.JobEventEnd})
	return payload, job, nil
}

// Resume re-enters Run for a job previously paused by an await_user_review
// task (StagesComplete unaffected), after the caller has recorded approval
// in payload.ReviewApproved.
func (r *Runtime) Resume(ctx context.Context, job domain.JobState, order []domain.JobStage, tasks Catalog, payload Payload) (Payload, domain.JobState, error) {
	return r.Run(ctx, job, order, tasks, payload)
}

func (r *Runtime) fail(ctx context.Context, job domain.JobState, stage domain.JobStage, err error) {
	errType, retryable := classify(err)
	_ = r.Store.RecordError(ctx, job.ID, stage, errType, err.Error(), retryable)
	r.Tracker.Emit(job.ID, domain.JobEvent{Kind: domain.JobEventError, Stage: stage, Message: err.Error()})
	r.Tracker.Emit(job.ID, domain.JobEvent{Kind: domain.JobEventEnd})
}
