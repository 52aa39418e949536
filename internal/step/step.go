// Package step implements the Step Engine (spec §4.3): the single-step
// lifecycle that turns one agent invocation into a durable Receipt and
// Handoff — budget assembly, transport execution, structured-output
// recovery, and artifact writes — grounded on the teacher's activity/hook
// lifecycle shape (dispatch an invocation, observe its terminal event,
// persist a durable record of what happened).
package step

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/stepflow-dev/harness/internal/budget"
	"github.com/stepflow-dev/harness/internal/config"
	"github.com/stepflow-dev/harness/internal/harnesserr"
	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stepflow-dev/harness/internal/telemetry"
	"github.com/stepflow-dev/harness/internal/transport"
)

// Request bundles everything one step invocation needs.
type Request struct {
	RunID    string
	FlowKey  config.FlowKey
	Step     config.Step
	Agent    config.Agent
	Budget   config.Budget
	Attempt  int

	Fragments []budget.Fragment
	History   []budget.HistoryItem

	// HandoffTier selects the bounded envelope size written on success.
	// Defaults to schema.TierStandard when empty.
	HandoffTier schema.Tier
}

// Result is what the Flow Orchestrator needs after one step attempt: the
// written receipt, the handoff envelope (zero value when the step did not
// PASS), and any routing signals the agent emitted.
type Result struct {
	Receipt  schema.Receipt
	Handoff  schema.Envelope
	Signals  []schema.Decision
	WroteHandoff bool

	// ForensicSummary is the critic's detour-catalog tag (spec §4.6), empty
	// when the agent emitted none.
	ForensicSummary string
	// CanFurtherIterationHelp carries the critic's own judgment of whether
	// another microloop iteration could help (spec §4.5). Defaults to false
	// when the agent's response omits the field.
	CanFurtherIterationHelp bool
}

// Engine runs one step at a time against a Transport and persists the
// outcome through a runstore.Store.
type Engine struct {
	Transport transport.Transport
	Store     *runstore.Store
	Log       telemetry.Logger

	// EngineID/Provider are recorded verbatim on every receipt (spec §3).
	EngineID string
	Provider string

	// Limiter paces transport.Execute calls (spec §5 budget enforcement),
	// most relevant to the microloop re-ask loop hammering a rate-limited
	// backend. Nil means unlimited.
	Limiter *rate.Limiter
}

// New constructs a step Engine.
func New(tp transport.Transport, store *runstore.Store, log telemetry.Logger, engineID, provider string) *Engine {
	if log == nil {
		log = telemetry.Noop{}
	}
	return &Engine{Transport: tp, Store: store, Log: log, EngineID: engineID, Provider: provider}
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// structuredPayload is the shape every agent response's JSON body is
// expected to carry (spec §4.4): pointers/structured fields destined for the
// handoff envelope, plus an optional routing signal and critic verdict.
type structuredPayload struct {
	StructuredFields map[string]any            `json:"structured_fields,omitempty"`
	Pointers         []schema.Pointer           `json:"pointers,omitempty"`
	Notes            string                     `json:"notes,omitempty"`
	RoutingSignal    schema.Decision            `json:"routing_signal,omitempty"`
	RoutingReason    string                     `json:"routing_reason,omitempty"`
	CriticVerdict    schema.CriticVerdict       `json:"critic_verdict,omitempty"`
	CriticRole       string                     `json:"critic_role,omitempty"`
	Evidence         map[string]schema.EvidencePointer `json:"evidence,omitempty"`

	// ForensicSummary is the critic's tag into routing.DetourCatalog (spec
	// §4.6), e.g. "stall_identical_signature".
	ForensicSummary string `json:"forensic_summary,omitempty"`
	// CanFurtherIterationHelp accompanies an ESCALATE routing_signal (spec
	// §4.5). A pointer so "omitted" and "explicitly false" are distinguishable.
	CanFurtherIterationHelp *bool `json:"can_further_iteration_help,omitempty"`
}

// Run executes req.Step once: assemble the prompt, invoke the transport,
// recover structured output per the transport's fallback strategy, and
// write the receipt (always) and handoff (only on PASS).
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	started := time.Now().UTC()

	assembled, err := budget.Assemble(req.Budget, req.Fragments, req.History)
	if err != nil {
		return e.failReceipt(req, started, err)
	}

	caps := e.Transport.Capabilities()
	strategy := transport.SelectStrategy(caps)

	runCtx := ctx
	if req.Step.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Step.Timeout)
		defer cancel()
	}

	payload, finalText, usage, execErr := e.invoke(runCtx, assembled.Prompt, strategy)
	ended := time.Now().UTC()

	if execErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			if caps.SupportsInterrupts {
				if ierr := e.Transport.Interrupt(ctx); ierr != nil {
					e.Log.Warn(ctx, "transport interrupt after timeout failed", "error", ierr.Error())
				}
			}
			res, err := e.timeoutReceipt(req, started, execErr)
			res.Receipt.EndedAt = ended
			res.Receipt.DurationMs = ended.Sub(started).Milliseconds()
			res.Receipt.ContextTruncation = &assembled.Truncation
			return res, err
		}
		res, err := e.failReceipt(req, started, execErr)
		res.Receipt.EndedAt = ended
		res.Receipt.DurationMs = ended.Sub(started).Milliseconds()
		res.Receipt.ContextTruncation = &assembled.Truncation
		return res, err
	}

	receipt := schema.Receipt{
		SchemaVersion:     schema.ReceiptSchemaVersion,
		EngineID:          e.EngineID,
		TransportMode:     string(strategy),
		Provider:          e.Provider,
		RunID:             req.RunID,
		FlowKey:           string(req.FlowKey),
		StepID:            req.Step.StepID,
		AgentKey:          req.Agent.AgentKey,
		Attempt:           req.Attempt,
		StartedAt:         started,
		EndedAt:           ended,
		DurationMs:        ended.Sub(started).Milliseconds(),
		Status:            schema.StatusPass,
		TokenUsage:        usage,
		Evidence:          payload.Evidence,
		ContextTruncation: &assembled.Truncation,
	}
	if payload.CriticRole != "" && payload.CriticVerdict != "" {
		receipt.CriticVerdicts = map[string]schema.CriticVerdict{payload.CriticRole: payload.CriticVerdict}
	}

	if err := e.Store.WriteReceipt(receipt); err != nil {
		return Result{Receipt: receipt}, err
	}
	if err := e.Store.AppendStepLog(string(req.FlowKey), req.Step.StepID, telemetry.Record{
		Timestamp: ended,
		Level:     telemetry.LevelInfo,
		RunID:     req.RunID,
		FlowKey:   string(req.FlowKey),
		StepID:    req.Step.StepID,
		AgentKey:  req.Agent.AgentKey,
		Message:   "step completed",
		Fields:    map[string]any{"status": string(receipt.Status), "final_text_len": len(finalText)},
	}); err != nil {
		e.Log.Warn(ctx, "step log append failed", "error", err.Error())
	}

	result := Result{Receipt: receipt}
	result.ForensicSummary = payload.ForensicSummary
	result.CanFurtherIterationHelp = payload.CanFurtherIterationHelp != nil && *payload.CanFurtherIterationHelp
	if payload.RoutingSignal != "" {
		result.Signals = append(result.Signals, payload.RoutingSignal)
	}

	tier := req.HandoffTier
	if tier == "" {
		tier = schema.TierStandard
	}
	env := schema.Envelope{
		SchemaVersion:    schema.HandoffSchemaVersion,
		Tier:             tier,
		FromStep:         req.Step.StepID,
		Pointers:         payload.Pointers,
		StructuredFields: payload.StructuredFields,
		Notes:            payload.Notes,
	}
	if err := env.Validate(); err != nil {
		// spec invariant 4 / §4.4 step 7: a handoff that overflows its tier
		// is a HandoffOverflow, not silently truncated.
		receipt.Status = schema.StatusFail
		receipt.Error = &schema.ErrorInfo{Kind: string(harnesserr.KindHandoffOverflow), Message: err.Error()}
		_ = e.Store.WriteReceipt(receipt)
		result.Receipt = receipt
		return result, err
	}
	if err := e.Store.WriteHandoff(string(req.FlowKey), req.Step.StepID, req.Agent.AgentKey, env); err != nil {
		return result, err
	}
	result.Handoff = env
	result.WroteHandoff = true
	return result, nil
}

// invoke runs the transport to completion under strategy, applying the
// microloop re-ask when the parse fails, capped at
// transport.MicroloopMaxRetries.
func (e *Engine) invoke(ctx context.Context, prompt string, strategy transport.StructuredOutputStrategy) (structuredPayload, string, *schema.TokenUsage, error) {
	attempts := 1
	if strategy == transport.StrategyMicroloop {
		attempts = 1 + transport.MicroloopMaxRetries
	}

	var lastErr error
	currentPrompt := prompt
	for i := 0; i < attempts; i++ {
		if e.Limiter != nil {
			if err := e.Limiter.Wait(ctx); err != nil {
				return structuredPayload{}, "", nil, harnesserr.Wrap(harnesserr.KindTransport, "step", "rate limiter wait", err)
			}
		}
		finalText, usage, err := e.execute(ctx, currentPrompt)
		if err != nil {
			return structuredPayload{}, "", nil, err
		}
		payload, parseErr := parseStructured(finalText)
		if parseErr == nil {
			return payload, finalText, usage, nil
		}
		lastErr = parseErr
		currentPrompt = prompt + fmt.Sprintf("\n\nYour previous reply could not be parsed as the required JSON object (%s). Reply again with only the JSON object.", parseErr)
	}
	return structuredPayload{}, "", nil, harnesserr.Wrap(harnesserr.KindStructuredOutput, "step", "recover structured output", lastErr)
}

func (e *Engine) execute(ctx context.Context, prompt string) (string, *schema.TokenUsage, error) {
	events, err := e.Transport.Execute(ctx, prompt, transport.Options{})
	if err != nil {
		return "", nil, harnesserr.Wrap(harnesserr.KindTransport, "step", "execute transport", err)
	}
	var final string
	var usage *schema.TokenUsage
	for ev := range events {
		switch ev.Kind {
		case transport.EventResult:
			final = ev.FinalText
		case transport.EventError:
			return "", nil, harnesserr.Wrap(harnesserr.KindTransport, "step", "transport reported error", ev.Err)
		case transport.EventUsage:
			usage = &schema.TokenUsage{Prompt: &ev.PromptTokens, Completion: &ev.CompletionTokens, Total: &ev.TotalTokens}
		}
	}
	return final, usage, nil
}

// parseStructured recovers the structuredPayload from a transport's final
// message: either the whole message is a JSON object (native structured
// output), or a fenced ```json block inside it (best-effort fallback).
func parseStructured(finalText string) (structuredPayload, error) {
	trimmed := bytes.TrimSpace([]byte(finalText))
	var payload structuredPayload

	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&payload); err == nil {
			return payload, nil
		}
	}

	if m := fencedJSON.FindSubmatch([]byte(finalText)); m != nil {
		dec := json.NewDecoder(bytes.NewReader(m[1]))
		dec.UseNumber()
		if err := dec.Decode(&payload); err == nil {
			return payload, nil
		}
	}

	return structuredPayload{}, fmt.Errorf("no parseable JSON object found in response")
}

// timeoutReceipt writes a TIMEOUT receipt (spec §3, §4.4, §5) for a step
// whose context deadline elapsed before the transport returned.
func (e *Engine) timeoutReceipt(req Request, started time.Time, cause error) (Result, error) {
	ended := time.Now().UTC()
	receipt := schema.Receipt{
		SchemaVersion: schema.ReceiptSchemaVersion,
		EngineID:      e.EngineID,
		Provider:      e.Provider,
		RunID:         req.RunID,
		FlowKey:       string(req.FlowKey),
		StepID:        req.Step.StepID,
		AgentKey:      req.Agent.AgentKey,
		Attempt:       req.Attempt,
		StartedAt:     started,
		EndedAt:       ended,
		DurationMs:    ended.Sub(started).Milliseconds(),
		Status:        schema.StatusTimeout,
		Error:         &schema.ErrorInfo{Kind: string(harnesserr.KindTimeout), Message: cause.Error()},
	}
	if writeErr := e.Store.WriteReceipt(receipt); writeErr != nil {
		return Result{Receipt: receipt}, writeErr
	}
	return Result{Receipt: receipt}, cause
}

func (e *Engine) failReceipt(req Request, started time.Time, cause error) (Result, error) {
	ended := time.Now().UTC()
	kind := harnesserr.KindTransport
	if he, ok := cause.(*harnesserr.Error); ok {
		kind = he.Kind()
	}
	receipt := schema.Receipt{
		SchemaVersion: schema.ReceiptSchemaVersion,
		EngineID:      e.EngineID,
		Provider:      e.Provider,
		RunID:         req.RunID,
		FlowKey:       string(req.FlowKey),
		StepID:        req.Step.StepID,
		AgentKey:      req.Agent.AgentKey,
		Attempt:       req.Attempt,
		StartedAt:     started,
		EndedAt:       ended,
		DurationMs:    ended.Sub(started).Milliseconds(),
		Status:        schema.StatusFail,
		Error:         &schema.ErrorInfo{Kind: string(kind), Message: cause.Error()},
	}
	if writeErr := e.Store.WriteReceipt(receipt); writeErr != nil {
		return Result{Receipt: receipt}, writeErr
	}
	return Result{Receipt: receipt}, cause
}
