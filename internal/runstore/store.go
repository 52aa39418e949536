package runstore

import (
	"encoding/json"
	"time"

	"github.com/stepflow-dev/harness/internal/harnesserr"
	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stepflow-dev/harness/internal/telemetry"
)

// Store is the high-level Run Store façade used by the Step Engine and
// Flow Orchestrator: it knows the canonical layout and enforces the
// schema-validation gate before writing receipts/handoffs.
type Store struct {
	Layout Layout
	Writer *Writer
	Log    telemetry.Logger
}

// New constructs a Store rooted at base/runID.
func New(base, runID string, artifactCapBytes int64, log telemetry.Logger) *Store {
	layout := NewLayout(base, runID)
	if log == nil {
		log = telemetry.Noop{}
	}
	return &Store{Layout: layout, Writer: NewWriter(layout, artifactCapBytes), Log: log}
}

// WriteReceipt validates and atomically writes a receipt. Per spec
// invariant 3, a new attempt overwrites only the latest receipt file — the
// caller is responsible for writing attempt transcripts separately before
// calling WriteReceipt with the final attempt's data.
func (s *Store) WriteReceipt(r schema.Receipt) error {
	if r.SchemaVersion == "" {
		r.SchemaVersion = schema.ReceiptSchemaVersion
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindStructuredOutput, "runstore", "marshal receipt", err)
	}
	if err := schema.ValidateReceipt(raw); err != nil {
		return err
	}
	path := s.Layout.ReceiptPath(r.FlowKey, r.StepID, r.AgentKey)
	return s.Writer.Write(path, raw)
}

// ReadReceipt loads and parses the receipt at the canonical path for
// (flowKey, stepID, agentKey). Returns an ArtifactMissing-kind error if
// absent.
func (s *Store) ReadReceipt(flowKey, stepID, agentKey string) (schema.Receipt, error) {
	var r schema.Receipt
	raw, err := Read(s.Layout.ReceiptPath(flowKey, stepID, agentKey))
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, harnesserr.Wrap(harnesserr.KindStructuredOutput, "runstore", "parse receipt", err)
	}
	return r, nil
}

// WriteHandoff validates (schema + tier cap) and atomically writes a
// handoff envelope. Per spec §4.4 step 7, callers must treat a Validate
// failure as HandoffOverflow and must not call WriteHandoff in that case.
func (s *Store) WriteHandoff(flowKey, stepID, agentKey string, env schema.Envelope) error {
	if env.SchemaVersion == "" {
		env.SchemaVersion = schema.HandoffSchemaVersion
	}
	if err := env.Validate(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindStructuredOutput, "runstore", "marshal handoff", err)
	}
	if err := schema.ValidateHandoff(raw); err != nil {
		return err
	}
	return s.Writer.Write(s.Layout.HandoffPath(flowKey, stepID, agentKey), raw)
}

// ReadHandoff loads and parses the handoff envelope for (flowKey, stepID,
// agentKey).
func (s *Store) ReadHandoff(flowKey, stepID, agentKey string) (schema.Envelope, error) {
	var env schema.Envelope
	raw, err := Read(s.Layout.HandoffPath(flowKey, stepID, agentKey))
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, harnesserr.Wrap(harnesserr.KindStructuredOutput, "runstore", "parse handoff", err)
	}
	return env, nil
}

// AppendStepLog appends one JSONL record to <flow>/logs/<step>.jsonl and to
// the run-wide log spine.
func (s *Store) AppendStepLog(flowKey, stepID string, rec telemetry.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindStructuredOutput, "runstore", "marshal log record", err)
	}
	if err := s.Writer.AppendJSONL(s.Layout.StepLogPath(flowKey, stepID), raw); err != nil {
		return err
	}
	return s.Writer.AppendJSONL(s.Layout.RunLogPath(), raw)
}

// AppendRoutingDecision appends a DecisionRecord to the flow's append-only
// routing log (spec invariant 6). The Flow Orchestrator never passes
// CONTINUE decisions here; the selftest runner's override audit does, under
// the "selftest" flow key.
func (s *Store) AppendRoutingDecision(flowKey string, rec schema.DecisionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindStructuredOutput, "runstore", "marshal routing decision", err)
	}
	return s.Writer.AppendJSONL(s.Layout.RoutingDecisionsPath(flowKey), raw)
}

// ReadRoutingDecisions returns every decision appended so far for flowKey,
// in append order. The tests use it to check the append-only property of
// spec §8.
func (s *Store) ReadRoutingDecisions(flowKey string) ([]schema.DecisionRecord, error) {
	raw, err := Read(s.Layout.RoutingDecisionsPath(flowKey))
	if err != nil {
		return nil, nil // no decisions yet is not an error
	}
	return decodeJSONLDecisions(raw)
}

func decodeJSONLDecisions(raw []byte) ([]schema.DecisionRecord, error) {
	var out []schema.DecisionRecord
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '\n' {
			line := raw[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var rec schema.DecisionRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, harnesserr.Wrap(harnesserr.KindStructuredOutput, "runstore", "parse routing decision line", err)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// WriteInjection writes the complete injection object for an INJECT_FLOW
// decision.
func (s *Store) WriteInjection(flowKey string, inj schema.Injection) error {
	raw, err := json.MarshalIndent(inj, "", "  ")
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindStructuredOutput, "runstore", "marshal injection", err)
	}
	return s.Writer.Write(s.Layout.RoutingInjectionPath(flowKey, inj.ID), raw)
}

// AppendDegradation appends a DegradationEntry to the run's degradation
// log. KERNEL-tier entries are rejected (spec §3 invariant: "KERNEL tier is
// NEVER logged here").
func (s *Store) AppendDegradation(e schema.DegradationEntry) error {
	if e.Tier == schema.TierKernel {
		return harnesserr.New(harnesserr.KindConfig, "runstore", "refusing to log a KERNEL-tier degradation entry")
	}
	if e.SchemaVersion == "" {
		e.SchemaVersion = schema.DegradationSchemaVersion
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindStructuredOutput, "runstore", "marshal degradation entry", err)
	}
	return s.Writer.AppendJSONL(s.Layout.DegradationLogPath(), raw)
}

// ArtifactExists reports whether a required input artifact is present,
// per the Fix-forward BLOCKED semantics of spec §4.5.
func (s *Store) ArtifactExists(flowKey, relPath string) bool {
	return Exists(s.Layout.DomainArtifactPath(flowKey, relPath))
}
