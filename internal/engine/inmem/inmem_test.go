package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stepflow-dev/harness/internal/engine"
	"github.com/stepflow-dev/harness/internal/engine/inmem"
	"github.com/stretchr/testify/require"
)

func TestStartWorkflow_ExecutesActivityAndCompletes(t *testing.T) {
	e := inmem.New()
	ctx := context.Background()

	require.NoError(t, e.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: "double",
		Handler: func(_ context.Context, input any) (any, error) {
			return input.(int) * 2, nil
		},
	}))
	require.NoError(t, e.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "double_flow",
		Handler: func(wctx engine.WorkflowContext, input any) (any, error) {
			var out int
			if err := wctx.ExecuteActivity(wctx.Context(), engine.ActivityRequest{Name: "double", Input: input}, &out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}))

	h, err := e.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "run-1", Workflow: "double_flow", Input: 21})
	require.NoError(t, err)

	var result int
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(waitCtx, &result))
	require.Equal(t, 42, result)
}

func TestStartWorkflow_UnregisteredNameFails(t *testing.T) {
	e := inmem.New()
	_, err := e.StartWorkflow(context.Background(), engine.WorkflowStartRequest{ID: "r", Workflow: "missing"})
	require.Error(t, err)
}

func TestSignal_DeliversToRunningWorkflow(t *testing.T) {
	e := inmem.New()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "waits_for_signal",
		Handler: func(wctx engine.WorkflowContext, _ any) (any, error) {
			var payload string
			if err := wctx.SignalChannel("go").Receive(wctx.Context(), &payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}))

	h, err := e.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "run-2", Workflow: "waits_for_signal"})
	require.NoError(t, err)

	require.NoError(t, h.Signal(ctx, "go", "proceed"))

	var result string
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(waitCtx, &result))
	require.Equal(t, "proceed", result)
}
