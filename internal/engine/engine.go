// Package engine defines the Workflow Engine abstraction (spec §4.6): a
// pluggable interface so the Flow Orchestrator can run atop an in-process
// executor for local development and tests, or atop a durable backend
// (Temporal) in production, without the orchestrator code changing.
package engine

import (
	"context"
	"time"

	"github.com/stepflow-dev/harness/internal/telemetry"
)

type (
	// Engine abstracts workflow registration and execution so adapters
	// (in-process, Temporal) can be swapped without touching orchestrator
	// code.
	Engine interface {
		// RegisterWorkflow registers a workflow definition. Called once
		// during startup before any StartWorkflow call.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition. Called once
		// during startup before any workflow referencing it runs.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow launches a workflow execution and returns a handle
		// for waiting on or signaling it. req.ID must be unique for the
		// engine instance.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is a flow's orchestration body. It must be deterministic:
	// every side effect (transport call, clock read, random choice) goes
	// through ExecuteActivity so replay produces the same execution
	// sequence.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to a running workflow.
	WorkflowContext interface {
		Context() context.Context
		WorkflowID() string
		RunID() string

		// ExecuteActivity schedules req and blocks until it completes,
		// decoding the result into result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules req without blocking.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the named signal channel (used for the
		// Flow Orchestrator's pause/resume and external override delivery).
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns replay-safe wall-clock time; workflow code must never
		// call time.Now() directly (spec §4.2 determinism requirement).
		Now() time.Time
	}

	// Future is a pending activity result.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers one activity handler.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc performs a side-effecting unit of work (transport call,
	// filesystem write, selftest probe).
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout for an activity.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch one workflow execution.
	WorkflowStartRequest struct {
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest describes one activity invocation from within a
	// workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers wait on, signal, or cancel a running
	// workflow.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy is shared retry configuration. Zero fields mean "engine
	// default".
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes signal delivery in an engine-agnostic way.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)

// RunStatus is the coarse lifecycle state an adapter reports for a started
// workflow.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)
