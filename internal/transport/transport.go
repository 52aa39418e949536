// Package transport defines the Transport Port (spec §4.3): the
// capability-typed language-model backend interface the core depends on.
// Concrete transport implementations (Claude SDK, CLI subprocess, Gemini
// CLI) are external per spec §1; this package specifies the interface plus
// a stub and a sandboxed stub used for local development and testing.
package transport

import "context"

// Capabilities declares what a transport backend supports. The Step Engine
// uses these flags to select a structured-output fallback strategy (spec
// §4.3).
type Capabilities struct {
	SupportsOutputFormat  bool
	SupportsHooks         bool
	SupportsInterrupts    bool
	SupportsHotContext    bool
	SupportsStreaming     bool
	SupportsNativeTools   bool
	SupportsToolObservation bool
	SupportsRewind        bool
	SupportsSandbox       bool
}

// EventKind names the kind of a streamed Event.
type EventKind string

const (
	EventMessage    EventKind = "message"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventUsage      EventKind = "usage"
	EventResult     EventKind = "result"
	EventError      EventKind = "error"
)

// Event is one item in the lazy, finite sequence a transport produces.
// Implementations may back this with goroutines, threads, or coroutines;
// the stream always terminates with either EventResult or EventError.
type Event struct {
	Kind EventKind

	// Text carries message content for EventMessage.
	Text string

	// ToolName/ToolInput/ToolOutput carry tool_call/tool_result payloads.
	ToolName   string
	ToolInput  any
	ToolOutput any

	// PromptTokens/CompletionTokens/TotalTokens carry EventUsage payloads.
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	// FinalText carries the final assembled message for EventResult.
	FinalText string

	// Err carries the failure for EventError.
	Err error
}

// Options configures one Execute call.
type Options struct {
	MaxTokens   int
	Temperature float64
	Timeout     int64 // milliseconds; 0 means no explicit timeout
}

// Transport abstracts one language-model backend. The core depends only on
// this interface; concrete implementations live outside this module.
type Transport interface {
	// Capabilities reports what this transport supports.
	Capabilities() Capabilities

	// Execute invokes the transport with prompt and streams events on the
	// returned channel. The channel is closed after a terminal event
	// (EventResult or EventError) is sent.
	Execute(ctx context.Context, prompt string, opts Options) (<-chan Event, error)

	// Interrupt requests best-effort cancellation of any in-flight Execute
	// call for this Transport instance. Returns an error if interruption is
	// unsupported (Capabilities().SupportsInterrupts == false).
	Interrupt(ctx context.Context) error
}

// StructuredOutputStrategy names how the Step Engine recovers a step's
// declared structured output from the transport's final message (spec
// §4.3).
type StructuredOutputStrategy string

const (
	// StrategyNone is used when the transport supports structured output
	// natively.
	StrategyNone StructuredOutputStrategy = "none"
	// StrategyBestEffort parses fenced code blocks from the final message.
	StrategyBestEffort StructuredOutputStrategy = "best-effort"
	// StrategyMicroloop re-asks until parseable, capped at 3 retries.
	StrategyMicroloop StructuredOutputStrategy = "microloop"
)

// MicroloopMaxRetries is the hard cap on re-asks (spec §4.3).
const MicroloopMaxRetries = 3

// SelectStrategy picks the structured-output fallback strategy for a
// transport, per spec §4.3: transports with native structured output need
// no recovery; everything else falls back to the microloop re-ask, capped
// at MicroloopMaxRetries, as the last resort.
func SelectStrategy(caps Capabilities) StructuredOutputStrategy {
	if caps.SupportsOutputFormat {
		return StrategyNone
	}
	return StrategyMicroloop
}
