package telemetry

import (
	"context"
	"sync"
)

// Fanout dispatches log records to multiple backend sinks (spec §4.8:
// logs-to-stdout, Prometheus pull, Datadog push, CloudWatch push).
// Backend failures are isolated — one broken sink never aborts a step —
// unless Strict is set, in which case a sink failure surfaces as a step
// ERROR that still does not abort the flow but is recorded via Errors.
type Fanout struct {
	Sinks  []Logger
	Strict bool

	mu     sync.Mutex
	errors []error
}

// NewFanout constructs a Fanout over the given sinks.
func NewFanout(sinks ...Logger) *Fanout {
	return &Fanout{Sinks: sinks}
}

func (f *Fanout) dispatch(fn func(Logger)) {
	var failed []string
	for i, sink := range f.Sinks {
		if sink == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					failed = append(failed, indexName(i))
				}
			}()
			fn(sink)
		}()
	}
	if len(failed) > 0 && f.Strict {
		f.mu.Lock()
		f.errors = append(f.errors, &sinkError{sinks: failed})
		f.mu.Unlock()
	}
}

// Errors returns sink failures recorded in Strict mode since the last call
// to DrainErrors.
func (f *Fanout) Errors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]error, len(f.errors))
	copy(out, f.errors)
	return out
}

// DrainErrors returns and clears recorded sink failures.
func (f *Fanout) DrainErrors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.errors
	f.errors = nil
	return out
}

func (f *Fanout) Debug(ctx context.Context, msg string, keyvals ...any) {
	f.dispatch(func(l Logger) { l.Debug(ctx, msg, keyvals...) })
}

func (f *Fanout) Info(ctx context.Context, msg string, keyvals ...any) {
	f.dispatch(func(l Logger) { l.Info(ctx, msg, keyvals...) })
}

func (f *Fanout) Warn(ctx context.Context, msg string, keyvals ...any) {
	f.dispatch(func(l Logger) { l.Warn(ctx, msg, keyvals...) })
}

func (f *Fanout) Error(ctx context.Context, msg string, keyvals ...any) {
	f.dispatch(func(l Logger) { l.Error(ctx, msg, keyvals...) })
}

type sinkError struct {
	sinks []string
}

func (e *sinkError) Error() string {
	msg := "telemetry: sink(s) failed:"
	for _, s := range e.sinks {
		msg += " " + s
	}
	return msg
}

func indexName(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return "sink-" + string(digits[i])
	}
	return "sink-N"
}
