package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/client"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
)

// Broker delivers a run's tasks to worker processes (spec §4.1 "A single
// broker delivers tasks; ordering within a run is enforced by making each
// task enqueue the next"). InProcessBroker and TemporalBroker are the two
// implementations: the former runs a Runtime.Run call synchronously in the
// caller's goroutine, the latter starts a durable Temporal workflow
// execution whose workflow type is JobSubmission.PipelineID. This module
// registers no Temporal worker or workflow function for that execution.
type Broker interface {
	Enqueue(ctx context.Context, queue string, job JobSubmission) (runID string, err error)
	Signal(ctx context.Context, jobID, signalName string, arg any) error
	Cancel(ctx context.Context, jobID string) error
}

// JobSubmission is the payload a broker hands to whichever worker executes
// the run.
type JobSubmission struct {
	JobID      string
	PipelineID string // workflow type name the worker should dispatch to
	Payload    Payload
}

// RegisteredPipeline pairs a pipeline kind's ordered stage catalog with its
// task implementations, looked up by JobSubmission.PipelineID.
type RegisteredPipeline struct {
	Order []domain.JobStage
	Tasks Catalog
}

// InProcessBroker executes a run immediately via Runtime.Run in the
// caller's goroutine, without any durability beyond whatever the caller's
// JobStateStore provides. The package's tests construct one; cmd/docintel
// does not. The caller is expected to have already created the JobState row
// (and run CheckDuplicate/ConcurrencyGuard) before calling Enqueue, mirroring
// spec §4.1's "duplicate-by-hash detection short-circuits the chain before
// enqueue".
type InProcessBroker struct {
	Runtime   *Runtime
	Pipelines map[string]RegisteredPipeline
}

func (b *InProcessBroker) Enqueue(ctx context.Context, _ string, job JobSubmission) (string, error) {
	p, ok := b.Pipelines[job.PipelineID]
	if !ok {
		return "", core.NewError("pipeline.InProcessBroker.Enqueue", core.ErrConfiguration, "no pipeline registered for "+job.PipelineID, nil)
	}
	jobState, err := b.Runtime.Store.Get(ctx, job.JobID)
	if err != nil {
		return "", core.NewError("pipeline.InProcessBroker.Enqueue", core.ErrStorage, "failed to load job state", err)
	}
	_, _, err = b.Runtime.Run(ctx, jobState, p.Order, p.Tasks, job.Payload)
	return job.JobID, err
}

// Signal is unsupported in-process: a paused run's caller already holds the
// payload and can call Runtime.Resume directly instead of round-tripping
// through a signal.
func (b *InProcessBroker) Signal(ctx context.Context, jobID, signalName string, arg any) error {
	return core.NewError("pipeline.InProcessBroker.Signal", core.ErrConfiguration, "in-process broker does not support signaling; call Runtime.Resume directly", nil)
}

// Cancel is unsupported in-process; a single-goroutine run either already
// finished or is still executing synchronously in its caller's stack.
func (b *InProcessBroker) Cancel(ctx context.Context, jobID string) error {
	return core.NewError("pipeline.InProcessBroker.Cancel", core.ErrConfiguration, "in-process broker does not support cancellation", nil)
}

// TemporalBroker wraps a go.temporal.io/sdk client.Client, grounded on the
// teacher's TemporalWorkflow provider
// (pkg/orchestration/providers/workflow/temporal.go): every operation opens
// an OpenTelemetry span and records the error on the span before
// returning, matching that provider's Execute/Signal/Cancel shape.
type TemporalBroker struct {
	Client     client.Client
	TaskQueue  string
	RunTimeout time.Duration
	tracer     trace.Tracer
}

// NewTemporalBroker constructs a TemporalBroker over an already-connected
// Temporal client.
func NewTemporalBroker(c client.Client, taskQueue string, runTimeout time.Duration) *TemporalBroker {
	return &TemporalBroker{
		Client:     c,
		TaskQueue:  taskQueue,
		RunTimeout: runTimeout,
		tracer:     otel.Tracer("docintel/pipeline"),
	}
}

func (b *TemporalBroker) Enqueue(ctx context.Context, queue string, job JobSubmission) (string, error) {
	ctx, span := b.tracer.Start(ctx, "pipeline.TemporalBroker.Enqueue")
	defer span.End()

	opts := client.StartWorkflowOptions{
		ID:                       job.JobID,
		TaskQueue:                queue,
		WorkflowExecutionTimeout: b.RunTimeout,
	}
	run, err := b.Client.ExecuteWorkflow(ctx, opts, job.PipelineID, job.Payload)
	if err != nil {
		span.RecordError(err)
		return "", core.NewError("pipeline.TemporalBroker.Enqueue", core.ErrStorage, "failed to start workflow", err)
	}
	return run.GetRunID(), nil
}

func (b *TemporalBroker) Signal(ctx context.Context, jobID, signalName string, arg any) error {
	ctx, span := b.tracer.Start(ctx, "pipeline.TemporalBroker.Signal")
	defer span.End()

	if err := b.Client.SignalWorkflow(ctx, jobID, "", signalName, arg); err != nil {
		span.RecordError(err)
		return core.NewError("pipeline.TemporalBroker.Signal", core.ErrStorage, "failed to signal workflow", err)
	}
	return nil
}

func (b *TemporalBroker) Cancel(ctx context.Context, jobID string) error {
	ctx, span := b.tracer.Start(ctx, "pipeline.TemporalBroker.Cancel")
	defer span.End()

	if err := b.Client.CancelWorkflow(ctx, jobID, ""); err != nil {
		span.RecordError(err)
		return core.NewError("pipeline.TemporalBroker.Cancel", core.ErrStorage, "failed to cancel workflow", err)
	}
	return nil
}
