package schema

import "time"

// Decision is the routing decision enum from spec §4.5. Exactly one
// decision terminates each step; when a receipt carries multiple signals,
// the orchestrator collapses them to the highest-authority decision using
// Decision.Priority.
type Decision string

const (
	DecisionContinue    Decision = "CONTINUE"
	DecisionLoop        Decision = "LOOP"
	DecisionDetour      Decision = "DETOUR"
	DecisionInjectFlow  Decision = "INJECT_FLOW"
	DecisionEscalate    Decision = "ESCALATE"
	DecisionTerminate   Decision = "TERMINATE"
)

// priorityOrder lists decisions from highest to lowest authority per spec
// §4.5's tie-breaking rule: TERMINATE > ESCALATE > INJECT_FLOW > DETOUR >
// LOOP > CONTINUE.
var priorityOrder = []Decision{
	DecisionTerminate,
	DecisionEscalate,
	DecisionInjectFlow,
	DecisionDetour,
	DecisionLoop,
	DecisionContinue,
}

// Priority returns the decision's rank in the tie-break order; lower values
// win. Unknown decisions sort last.
func (d Decision) Priority() int {
	for i, candidate := range priorityOrder {
		if candidate == d {
			return i
		}
	}
	return len(priorityOrder)
}

// HighestAuthority collapses a set of signals to the single decision with
// the highest authority, per spec §4.5. Returns DecisionContinue if signals
// is empty (CONTINUE is implicit and never logged).
func HighestAuthority(signals []Decision) Decision {
	best := DecisionContinue
	bestPriority := best.Priority()
	for _, s := range signals {
		if p := s.Priority(); p < bestPriority {
			best = s
			bestPriority = p
		}
	}
	return best
}

// DecisionRecord is one append-only line in routing/decisions.jsonl (spec
// §3). The Flow Orchestrator treats CONTINUE as implicit and never writes it
// (spec scenario 1: "routing/decisions.jsonl contains no entries"); the
// selftest override audit writes CONTINUE records under the "selftest" flow
// key.
type DecisionRecord struct {
	Timestamp       time.Time `json:"ts"`
	RunID           string    `json:"run_id"`
	FlowKey         string    `json:"flow_key"`
	StepID          string    `json:"step_id"`
	Decision        Decision  `json:"decision"`
	Reason          string    `json:"reason"`
	ForensicSummary string    `json:"forensic_summary,omitempty"`
	NextStepID      string    `json:"next_step_id,omitempty"`
}

// Injection is the complete object written under routing/injections/<id>.json
// for every INJECT_FLOW / node-injection decision (spec §4.5).
type Injection struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	FlowKey    string         `json:"flow_key"`
	StepID     string         `json:"step_id"`
	SubFlowKey string         `json:"sub_flow_key"`
	Reason     string         `json:"reason"`
	Timestamp  time.Time      `json:"ts"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
