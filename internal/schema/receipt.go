// Package schema defines the versioned, machine-validated on-disk records
// shared by every component: receipts, handoff envelopes, degradation
// entries, and routing decision records (spec §3).
package schema

import "time"

// Status is the terminal outcome of one step attempt (spec §3 StepResult).
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusSkip    Status = "SKIP"
	StatusTimeout Status = "TIMEOUT"
)

// TokenUsage reports prompt/completion/total token counts. All fields are
// pointers so an absent usage report (some transports never report tokens)
// serializes as omitted rather than zero.
type TokenUsage struct {
	Prompt     *int `json:"prompt,omitempty"`
	Completion *int `json:"completion,omitempty"`
	Total      *int `json:"total,omitempty"`
}

// EvidencePointer records whether a claimed artifact was actually measured
// or merely asserted, per spec §3's {measured:true, evidence_path} /
// {measured:false, reason} union.
type EvidencePointer struct {
	Measured     bool   `json:"measured"`
	EvidencePath string `json:"evidence_path,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// CriticVerdict is a closed enum drawn from the critic's routing signal,
// stored in Receipt.CriticVerdicts as a map from role to verdict (spec §9:
// "a map from role -> verdict string drawn from a closed enum").
type CriticVerdict string

const (
	VerdictVerified    CriticVerdict = "VERIFIED"
	VerdictUnverified  CriticVerdict = "UNVERIFIED"
	VerdictInconclusive CriticVerdict = "INCONCLUSIVE"
)

// ContextTruncation records the Context Budgeter's accounting for one step
// invocation (spec §3, §4.2, §8 "context budget" testable property).
type ContextTruncation struct {
	StepsIncluded int  `json:"steps_included"`
	StepsTotal    int  `json:"steps_total"`
	CharsUsed     int  `json:"chars_used"`
	BudgetChars   int  `json:"budget_chars"`
	Truncated     bool `json:"truncated"`
}

// ErrorInfo is the structured error carried inside a receipt when a step
// does not PASS. Kind mirrors harnesserr.Kind's string values.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// ReceiptSchemaVersion is the current receipt schema version. Receipts carry this
// field so readers can detect forward-incompatible shapes (spec §6).
const ReceiptSchemaVersion = "1.0"

// Receipt is the durable proof-of-work for one step (spec §3). Receipts
// never mutate after write; a new attempt overwrites only the latest file
// (spec invariant 3).
type Receipt struct {
	SchemaVersion string `json:"schema_version"`

	EngineID      string `json:"engine_id"`
	TransportMode string `json:"transport_mode"`
	Provider      string `json:"provider"`

	RunID    string `json:"run_id"`
	FlowKey  string `json:"flow_key"`
	StepID   string `json:"step_id"`
	AgentKey string `json:"agent_key"`

	Attempt int `json:"attempt"`

	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at"`
	DurationMs int64      `json:"duration_ms"`
	Status     Status     `json:"status"`

	TokenUsage *TokenUsage `json:"token_usage,omitempty"`

	Evidence map[string]EvidencePointer `json:"evidence,omitempty"`

	CriticVerdicts map[string]CriticVerdict `json:"critic_verdicts,omitempty"`

	ContextTruncation *ContextTruncation `json:"context_truncation,omitempty"`

	Error *ErrorInfo `json:"error,omitempty"`
}

// IsTerminal reports whether the receipt records a status that satisfies
// spec invariant 2: "A step receipt exists iff the step reached a terminal
// status".
func (r Receipt) IsTerminal() bool {
	switch r.Status {
	case StatusPass, StatusFail, StatusSkip, StatusTimeout:
		return true
	default:
		return false
	}
}
