package transport_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stepflow-dev/harness/internal/transport"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan transport.Event) []transport.Event {
	t.Helper()
	var events []transport.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestStub_DefaultResponder_EmitsMessageThenResult(t *testing.T) {
	s := transport.NewStub(nil)
	ch, err := s.Execute(context.Background(), "do the thing", transport.Options{})
	require.NoError(t, err)

	events := drain(t, ch)
	require.Len(t, events, 2)
	require.Equal(t, transport.EventMessage, events[0].Kind)
	require.Equal(t, transport.EventResult, events[1].Kind)
	require.Contains(t, events[1].FinalText, "stub response")
}

func TestStub_CustomResponder_IsUsedVerbatim(t *testing.T) {
	s := transport.NewStub(func(prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	ch, err := s.Execute(context.Background(), "hello", transport.Options{})
	require.NoError(t, err)

	events := drain(t, ch)
	require.Equal(t, "echo: hello", events[1].FinalText)
}

func TestStub_ResponderError_EmitsEventError(t *testing.T) {
	wantErr := errors.New("responder exploded")
	s := transport.NewStub(func(string) (string, error) { return "", wantErr })
	ch, err := s.Execute(context.Background(), "hello", transport.Options{})
	require.NoError(t, err)

	events := drain(t, ch)
	require.Len(t, events, 1)
	require.Equal(t, transport.EventError, events[0].Kind)
	require.ErrorIs(t, events[0].Err, wantErr)
}

func TestStub_Interrupt_FailsSubsequentExecute(t *testing.T) {
	s := transport.NewStub(nil)
	require.NoError(t, s.Interrupt(context.Background()))

	ch, err := s.Execute(context.Background(), "hello", transport.Options{})
	require.NoError(t, err)

	events := drain(t, ch)
	require.Len(t, events, 1)
	require.Equal(t, transport.EventError, events[0].Kind)
}

func TestStub_Capabilities_SupportsOutputFormatAndInterrupts(t *testing.T) {
	caps := transport.NewStub(nil).Capabilities()
	require.True(t, caps.SupportsOutputFormat)
	require.True(t, caps.SupportsInterrupts)
	require.False(t, caps.SupportsSandbox)
}
