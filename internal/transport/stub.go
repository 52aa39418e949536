package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Stub is a deterministic, in-process Transport used for tests, demos, and
// the default `SWARM_CLAUDE_STEP_ENGINE_MODE=stub` mode (spec §6). It
// never calls out to a real model; Responder computes a canned final
// message (and optional routing signal) for each prompt.
type Stub struct {
	Responder   func(prompt string) (string, error)
	interrupted atomic.Bool
}

// NewStub constructs a Stub with the given responder. If responder is nil,
// a default responder that echoes a minimal handoff JSON object is used.
func NewStub(responder func(prompt string) (string, error)) *Stub {
	if responder == nil {
		responder = defaultResponder
	}
	return &Stub{Responder: responder}
}

func defaultResponder(string) (string, error) {
	payload := map[string]any{
		"structured_fields": map[string]any{},
		"notes":             "stub response",
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return "```json\n" + string(raw) + "\n```", nil
}

// Capabilities reports the Stub's fixed capability set: it supports native
// structured output (so the Step Engine never selects the microloop re-ask
// for it) and interrupts, nothing else.
func (s *Stub) Capabilities() Capabilities {
	return Capabilities{
		SupportsOutputFormat: true,
		SupportsInterrupts:   true,
	}
}

// Execute synchronously computes the responder's output and emits it as a
// two-event stream: EventMessage followed by EventResult (or EventError).
func (s *Stub) Execute(ctx context.Context, prompt string, _ Options) (<-chan Event, error) {
	ch := make(chan Event, 2)
	go func() {
		defer close(ch)
		if s.interrupted.Load() {
			ch <- Event{Kind: EventError, Err: fmt.Errorf("transport: interrupted before execute")}
			return
		}
		text, err := s.Responder(prompt)
		if err != nil {
			ch <- Event{Kind: EventError, Err: err}
			return
		}
		select {
		case <-ctx.Done():
			ch <- Event{Kind: EventError, Err: ctx.Err()}
			return
		default:
		}
		ch <- Event{Kind: EventMessage, Text: text}
		ch <- Event{Kind: EventResult, FinalText: text}
	}()
	return ch, nil
}

// Interrupt marks the stub as interrupted; any subsequent Execute call
// returns an EventError immediately. Stub supports interrupts
// unconditionally.
func (s *Stub) Interrupt(context.Context) error {
	s.interrupted.Store(true)
	return nil
}
