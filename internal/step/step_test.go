package step_test

import (
	"context"
	"testing"
	"time"

	"github.com/stepflow-dev/harness/internal/config"
	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stepflow-dev/harness/internal/step"
	"github.com/stepflow-dev/harness/internal/transport"
	"github.com/stretchr/testify/require"
)

// flakyTransport reports no native structured-output support and returns
// unparseable text until its second call, used to exercise the microloop
// re-ask fallback (spec §4.3).
type flakyTransport struct {
	calls int
}

func (f *flakyTransport) Capabilities() transport.Capabilities {
	return transport.Capabilities{}
}

func (f *flakyTransport) Execute(_ context.Context, _ string, _ transport.Options) (<-chan transport.Event, error) {
	f.calls++
	text := "not json at all"
	if f.calls >= 2 {
		text = `{"structured_fields":{},"notes":"ok"}`
	}
	ch := make(chan transport.Event, 2)
	ch <- transport.Event{Kind: transport.EventMessage, Text: text}
	ch <- transport.Event{Kind: transport.EventResult, FinalText: text}
	close(ch)
	return ch, nil
}

func (f *flakyTransport) Interrupt(context.Context) error { return nil }

// slowTransport sleeps past whatever deadline the caller's context carries
// before replying, used to exercise step timeout handling.
type slowTransport struct {
	delay time.Duration
}

func (s *slowTransport) Capabilities() transport.Capabilities {
	return transport.Capabilities{SupportsOutputFormat: true, SupportsInterrupts: true}
}

func (s *slowTransport) Execute(ctx context.Context, _ string, _ transport.Options) (<-chan transport.Event, error) {
	ch := make(chan transport.Event, 1)
	go func() {
		defer close(ch)
		select {
		case <-time.After(s.delay):
			ch <- transport.Event{Kind: transport.EventResult, FinalText: `{"structured_fields":{}}`}
		case <-ctx.Done():
			ch <- transport.Event{Kind: transport.EventError, Err: ctx.Err()}
		}
	}()
	return ch, nil
}

func (s *slowTransport) Interrupt(context.Context) error { return nil }

func newTestEngine(t *testing.T, responder func(string) (string, error)) (*step.Engine, *runstore.Store) {
	t.Helper()
	store := runstore.New(t.TempDir(), "run-1", 8<<20, nil)
	eng := step.New(transport.NewStub(responder), store, nil, "test-engine", "stub")
	return eng, store
}

func baseRequest() step.Request {
	return step.Request{
		RunID:   "run-1",
		FlowKey: config.FlowSignal,
		Step:    config.Step{StepID: "draft", AgentKey: "drafter"},
		Agent:   config.Agent{AgentKey: "drafter"},
		Budget:  config.DefaultBudget,
		Attempt: 1,
	}
}

func TestRun_PassWritesReceiptAndHandoff(t *testing.T) {
	eng, store := newTestEngine(t, func(string) (string, error) {
		return "```json\n{\"structured_fields\":{\"summary\":\"ok\"},\"notes\":\"done\"}\n```", nil
	})

	res, err := eng.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, schema.StatusPass, res.Receipt.Status)
	require.True(t, res.WroteHandoff)
	require.Equal(t, "done", res.Handoff.Notes)

	r, err := store.ReadReceipt("signal", "draft", "drafter")
	require.NoError(t, err)
	require.Equal(t, schema.StatusPass, r.Status)

	env, err := store.ReadHandoff("signal", "draft", "drafter")
	require.NoError(t, err)
	require.Equal(t, schema.TierStandard, env.Tier)
}

func TestRun_TransportErrorWritesFailReceipt(t *testing.T) {
	eng, store := newTestEngine(t, func(string) (string, error) {
		return "", context.DeadlineExceeded
	})

	res, err := eng.Run(context.Background(), baseRequest())
	require.Error(t, err)
	require.Equal(t, schema.StatusFail, res.Receipt.Status)

	r, err := store.ReadReceipt("signal", "draft", "drafter")
	require.NoError(t, err)
	require.Equal(t, schema.StatusFail, r.Status)
	require.NotNil(t, r.Error)
}

func TestRun_UnparsableOutputIsStructuredOutputError(t *testing.T) {
	eng, _ := newTestEngine(t, func(string) (string, error) {
		return "not json at all", nil
	})

	_, err := eng.Run(context.Background(), baseRequest())
	require.Error(t, err)
}

func TestRun_RoutingSignalSurfaced(t *testing.T) {
	eng, _ := newTestEngine(t, func(string) (string, error) {
		return `{"structured_fields":{},"routing_signal":"LOOP","routing_reason":"needs another pass"}`, nil
	})

	res, err := eng.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, []schema.Decision{schema.DecisionLoop}, res.Signals)
}

func TestRun_ForensicSummaryAndCanFurtherIterationHelpSurfaced(t *testing.T) {
	eng, _ := newTestEngine(t, func(string) (string, error) {
		return `{"structured_fields":{},"routing_signal":"ESCALATE","forensic_summary":"stall_identical_signature","can_further_iteration_help":true}`, nil
	})

	res, err := eng.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, "stall_identical_signature", res.ForensicSummary)
	require.True(t, res.CanFurtherIterationHelp)
}

func TestRun_CanFurtherIterationHelpDefaultsFalseWhenOmitted(t *testing.T) {
	eng, _ := newTestEngine(t, func(string) (string, error) {
		return `{"structured_fields":{},"routing_signal":"ESCALATE"}`, nil
	})

	res, err := eng.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.False(t, res.CanFurtherIterationHelp)
}

func TestRun_MicroloopRetriesUntilParseable(t *testing.T) {
	tp := &flakyTransport{}
	store := runstore.New(t.TempDir(), "run-1", 8<<20, nil)
	eng := step.New(tp, store, nil, "test-engine", "stub")

	res, err := eng.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, schema.StatusPass, res.Receipt.Status)
	require.Equal(t, 2, tp.calls)
}

func TestRun_StepTimeoutWritesTimeoutReceipt(t *testing.T) {
	store := runstore.New(t.TempDir(), "run-1", 8<<20, nil)
	eng := step.New(&slowTransport{delay: 50 * time.Millisecond}, store, nil, "test-engine", "stub")

	req := baseRequest()
	req.Step.Timeout = 5 * time.Millisecond

	res, err := eng.Run(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, schema.StatusTimeout, res.Receipt.Status)
	require.Equal(t, "timeout", res.Receipt.Error.Kind)

	r, err := store.ReadReceipt("signal", "draft", "drafter")
	require.NoError(t, err)
	require.Equal(t, schema.StatusTimeout, r.Status)
}
