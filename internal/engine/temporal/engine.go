// Package temporal implements the engine.Engine abstraction on top of
// Temporal, for production runs that need durable, replay-safe flow
// execution across process restarts (spec §4.6, "durable Engine adapter").
//
// It is deliberately a thin wrapper: one Temporal worker per task queue, one
// Temporal workflow/activity type per registered Flow/Step definition, and a
// workflowContext that forwards ExecuteActivity/SignalChannel/Now onto the
// corresponding workflow.Context call so orchestrator code written against
// engine.WorkflowContext is engine-agnostic.
package temporal

import (
	"context"
	"fmt"
	"sync"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	tmptemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/stepflow-dev/harness/internal/engine"
	"github.com/stepflow-dev/harness/internal/telemetry"
)

// Options configures the Temporal engine adapter.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, ClientOptions is
	// used to construct one lazily.
	Client client.Client

	// ClientOptions constructs the client when Client is nil.
	ClientOptions client.Options

	// TaskQueue is the default queue used when a WorkflowDefinition or
	// ActivityDefinition omits one.
	TaskQueue string

	// WorkerOptions configures every worker this adapter creates.
	WorkerOptions worker.Options

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Engine implements engine.Engine atop a Temporal client and one worker per
// task queue.
type Engine struct {
	client      client.Client
	closeClient bool
	defaultQ    string
	workerOpts  worker.Options

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	mu      sync.Mutex
	workers map[string]worker.Worker
	started map[string]bool
}

// New constructs a Temporal-backed Engine. opts.TaskQueue is required.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: TaskQueue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.Noop{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.Noop{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Noop{}
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		c, err := client.Dial(opts.ClientOptions)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: dial client: %w", err)
		}
		cli, closeClient = c, true
	}

	return &Engine{
		client:      cli,
		closeClient: closeClient,
		defaultQ:    opts.TaskQueue,
		workerOpts:  opts.WorkerOptions,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
		workers:     make(map[string]worker.Worker),
		started:     make(map[string]bool),
	}, nil
}

// Close shuts down every worker this adapter created and the client if this
// adapter owns it.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.workers {
		w.Stop()
	}
	if e.closeClient {
		e.client.Close()
	}
}

func (e *Engine) workerForQueue(queue string) worker.Worker {
	if queue == "" {
		queue = e.defaultQ
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workers[queue]
	if !ok {
		w = worker.New(e.client, queue, e.workerOpts)
		e.workers[queue] = w
	}
	return w
}

// RegisterWorkflow registers def with the Temporal worker for its task
// queue, wrapping the handler so it sees an engine.WorkflowContext rather
// than a raw workflow.Context.
func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid workflow definition")
	}
	w := e.workerForQueue(def.TaskQueue)
	w.RegisterWorkflowWithOptions(func(tctx workflow.Context, input any) (any, error) {
		return def.Handler(newWorkflowContext(e, tctx), input)
	}, workflow.RegisterOptions{Name: def.Name})
	return nil
}

// RegisterActivity registers def with the Temporal worker for its queue.
func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" || def.Handler == nil {
		return fmt.Errorf("temporal engine: invalid activity definition")
	}
	w := e.workerForQueue(def.Options.Queue)
	w.RegisterActivityWithOptions(def.Handler, activity.RegisterOptions{Name: def.Name})
	return nil
}

// StartWorkflow ensures the target queue's worker is running, then starts a
// Temporal workflow execution.
func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	queue := req.TaskQueue
	if queue == "" {
		queue = e.defaultQ
	}
	if err := e.ensureStarted(queue); err != nil {
		return nil, err
	}

	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    req.ID,
		TaskQueue:             queue,
		Memo:                  req.Memo,
		SearchAttributes:      req.SearchAttributes,
		WorkflowExecutionTimeout: 0,
	}, req.Workflow, req.Input)
	if err != nil {
		return nil, fmt.Errorf("temporal engine: start workflow %q: %w", req.Workflow, err)
	}
	return &handle{client: e.client, run: run}, nil
}

func (e *Engine) ensureStarted(queue string) error {
	w := e.workerForQueue(queue)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started[queue] {
		return nil
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("temporal engine: start worker for queue %q: %w", queue, err)
	}
	e.started[queue] = true
	return nil
}

type handle struct {
	client client.Client
	run    client.WorkflowRun
}

func (h *handle) Wait(ctx context.Context, result any) error {
	return h.run.Get(ctx, result)
}

func (h *handle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

func (h *handle) Cancel(ctx context.Context) error {
	return h.client.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}

// normalizeError maps Temporal's cancellation error type onto context.Canceled
// so orchestrator code can classify cancellation without importing Temporal.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if tmptemporal.IsCanceledError(err) {
		return context.Canceled
	}
	return err
}
