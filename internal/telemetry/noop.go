package telemetry

import (
	"context"
	"time"
)

// Noop implements Logger, Metrics, and Tracer as inert sinks. Used by tests
// and by the stub transport mode when no observability backend is
// configured.
type Noop struct{}

func (Noop) Debug(context.Context, string, ...any) {}
func (Noop) Info(context.Context, string, ...any)  {}
func (Noop) Warn(context.Context, string, ...any)  {}
func (Noop) Error(context.Context, string, ...any) {}

func (Noop) IncCounter(string, float64, ...string)          {}
func (Noop) RecordTimer(string, time.Duration, ...string)   {}
func (Noop) RecordGauge(string, float64, ...string)         {}

func (Noop) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                       {}
func (noopSpan) SetAttribute(string, any)   {}
func (noopSpan) RecordError(error)          {}

// Recording is an in-memory Logger used by tests to assert on emitted
// records without depending on clue's global formatting state.
type Recording struct {
	Records []Record
}

func (r *Recording) append(level Level, msg string, keyvals []any) {
	fields := make(map[string]any, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, _ := keyvals[i].(string)
		if key == "" {
			continue
		}
		fields[key] = keyvals[i+1]
	}
	r.Records = append(r.Records, Record{Level: level, Message: msg, Fields: fields})
}

func (r *Recording) Debug(_ context.Context, msg string, keyvals ...any) { r.append(LevelDebug, msg, keyvals) }
func (r *Recording) Info(_ context.Context, msg string, keyvals ...any)  { r.append(LevelInfo, msg, keyvals) }
func (r *Recording) Warn(_ context.Context, msg string, keyvals ...any)  { r.append(LevelWarn, msg, keyvals) }
func (r *Recording) Error(_ context.Context, msg string, keyvals ...any) { r.append(LevelError, msg, keyvals) }
