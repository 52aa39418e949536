package schema

import "time"

// DegradationSchemaVersion is the JSONL degradation log schema version (spec
// §3: "Degradation Entry (schema v1.1)").
const DegradationSchemaVersion = "1.1"

// Severity classifies a degradation entry.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// SelftestTier names the selftest tier (spec §4.7). KERNEL is never logged
// to the degradation log (spec §3 invariant: "KERNEL tier is NEVER logged
// here").
type SelftestTier string

const (
	TierKernel     SelftestTier = "kernel"
	TierGovernance SelftestTier = "governance"
	TierOptional   SelftestTier = "optional"
)

// DegradationEntry is one JSONL line appended to selftest_degradations.log
// (spec §3). Status must be FAIL or TIMEOUT per spec §8's invariant — a
// step that PASSed never produces a degradation entry.
type DegradationEntry struct {
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	StepID        string       `json:"step_id"`
	StepName      string       `json:"step_name"`
	Tier          SelftestTier `json:"tier"`
	Status        Status       `json:"status"`
	Reason        string    `json:"reason"`
	Message       string    `json:"message"`
	Severity      Severity  `json:"severity"`
	Remediation   string    `json:"remediation,omitempty"`
}

// Valid reports whether the entry satisfies the degradation log invariants
// tested in spec §8: tier is never kernel, and status is FAIL or TIMEOUT.
func (e DegradationEntry) Valid() bool {
	if e.Tier == TierKernel {
		return false
	}
	return e.Status == StatusFail || e.Status == StatusTimeout
}
