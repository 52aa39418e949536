package schema_test

import (
	"testing"
	"time"

	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestReceipt_IsTerminal(t *testing.T) {
	for _, status := range []schema.Status{schema.StatusPass, schema.StatusFail, schema.StatusSkip, schema.StatusTimeout} {
		r := schema.Receipt{Status: status}
		require.True(t, r.IsTerminal(), "status %s should be terminal", status)
	}
	require.False(t, schema.Receipt{Status: schema.Status("RUNNING")}.IsTerminal())
	require.False(t, schema.Receipt{}.IsTerminal())
}

func TestReceipt_TokenUsage_OmitsAbsentFields(t *testing.T) {
	r := schema.Receipt{
		SchemaVersion: schema.ReceiptSchemaVersion,
		RunID:         "run-1",
		FlowKey:       "signal",
		StepID:        "triage",
		AgentKey:      "signal_triage",
		Status:        schema.StatusPass,
		StartedAt:     time.Now(),
		EndedAt:       time.Now(),
	}
	require.Nil(t, r.TokenUsage)
	require.Nil(t, r.Error)
}

func TestEvidencePointer_MeasuredVsAsserted(t *testing.T) {
	measured := schema.EvidencePointer{Measured: true, EvidencePath: "gate/reports/lint.json"}
	asserted := schema.EvidencePointer{Measured: false, Reason: "tool unavailable in sandbox"}

	require.True(t, measured.Measured)
	require.Empty(t, measured.Reason)
	require.False(t, asserted.Measured)
	require.Empty(t, asserted.EvidencePath)
}

func TestCriticVerdict_ClosedEnumValues(t *testing.T) {
	verdicts := map[string]schema.CriticVerdict{
		"gate_reporter": schema.VerdictVerified,
		"plan_critic":   schema.VerdictUnverified,
		"build_critic":  schema.VerdictInconclusive,
	}
	require.Equal(t, schema.VerdictVerified, verdicts["gate_reporter"])
	require.Len(t, verdicts, 3)
}
