package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stepflow-dev/harness/internal/engine"
	"github.com/stepflow-dev/harness/internal/telemetry"
)

// workflowContext adapts a Temporal workflow.Context into engine.WorkflowContext.
type workflowContext struct {
	eng        *Engine
	ctx        workflow.Context
	workflowID string
	runID      string
}

func newWorkflowContext(e *Engine, ctx workflow.Context) *workflowContext {
	info := workflow.GetInfo(ctx)
	return &workflowContext{
		eng:        e,
		ctx:        ctx,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
	}
}

// Context returns context.Background: workflow code must route all
// cancellation through the Temporal workflow.Context, not a standard Go
// context, so this exists only to satisfy callers that need "some" context
// to pass through to ExecuteActivity (ignored by this adapter).
func (w *workflowContext) Context() context.Context { return context.Background() }
func (w *workflowContext) WorkflowID() string        { return w.workflowID }
func (w *workflowContext) RunID() string             { return w.runID }
func (w *workflowContext) Logger() telemetry.Logger   { return w.eng.logger }
func (w *workflowContext) Metrics() telemetry.Metrics { return w.eng.metrics }
func (w *workflowContext) Tracer() telemetry.Tracer   { return w.eng.tracer }
func (w *workflowContext) Now() time.Time             { return workflow.Now(w.ctx) }

func (w *workflowContext) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *workflowContext) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	opts := workflow.ActivityOptions{
		TaskQueue:           req.Queue,
		StartToCloseTimeout: req.Timeout,
	}
	if req.RetryPolicy.MaxAttempts > 0 {
		opts.RetryPolicy = &temporal.RetryPolicy{
			MaximumAttempts:    int32(req.RetryPolicy.MaxAttempts),
			InitialInterval:    req.RetryPolicy.InitialInterval,
			BackoffCoefficient: req.RetryPolicy.BackoffCoefficient,
		}
	}
	actCtx := workflow.WithActivityOptions(w.ctx, opts)
	f := workflow.ExecuteActivity(actCtx, req.Name, req.Input)
	return &future{ctx: w.ctx, future: f}, nil
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	return &signalChannel{ctx: w.ctx, ch: workflow.GetSignalChannel(w.ctx, name)}
}

type future struct {
	ctx    workflow.Context
	future workflow.Future
}

// Get ignores the passed-in context: Temporal futures resolve against the
// enclosing workflow.Context's deterministic scheduler, not a standard Go
// context, which this adapter already captured when the future was created.
func (f *future) Get(_ context.Context, result any) error {
	return f.future.Get(f.ctx, result)
}

func (f *future) IsReady() bool { return f.future.IsReady() }

type signalChannel struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

// Receive ignores the passed-in context for the same reason future.Get does.
func (s *signalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.ctx, dest)
	return nil
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}
