package runstore_test

import (
	"testing"

	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stretchr/testify/require"
)

func TestNewLayout_NormalizesSeparatorsAndCase(t *testing.T) {
	l := runstore.NewLayout(`C:\Runs`, "Run_ABC")
	require.Equal(t, "c:/runs/run-abc", l.Root)
}

func TestLayout_CanonicalPaths_AreDeterministicFromIdentity(t *testing.T) {
	l := runstore.NewLayout("/runs", "run-1")

	require.Equal(t, "/runs/run-1/signal/receipts/triage-signal-triage.json",
		l.ReceiptPath("signal", "triage", "signal_triage"))
	require.Equal(t, "/runs/run-1/signal/handoffs/triage-signal-triage.json",
		l.HandoffPath("signal", "triage", "signal_triage"))
	require.Equal(t, "/runs/run-1/signal/logs/triage.jsonl", l.StepLogPath("signal", "triage"))
	require.Equal(t, "/runs/run-1/logs/run.jsonl", l.RunLogPath())
	require.Equal(t, "/runs/run-1/build/selftest_report.json", l.SelftestReportPath())
	require.Equal(t, "/runs/run-1/build/selftest_degradations.log", l.DegradationLogPath())
}

func TestLayout_AttemptTranscriptPath_IncludesAttemptNumber(t *testing.T) {
	l := runstore.NewLayout("/runs", "run-1")
	p := l.AttemptTranscriptPath("build", "draft", "drafter", 3)
	require.Equal(t, "/runs/run-1/build/llm/draft-drafter-attempt-3.jsonl", p)
}

func TestLayout_RoutingInjectionPath(t *testing.T) {
	l := runstore.NewLayout("/runs", "run-1")
	p := l.RoutingInjectionPath("build", "Injection_1")
	require.Equal(t, "/runs/run-1/build/routing/injections/injection-1.json", p)
}

func TestLayout_DomainArtifactPath_ScopedToFlowDir(t *testing.T) {
	l := runstore.NewLayout("/runs", "run-1")
	p := l.DomainArtifactPath("plan", "design_doc.md")
	require.Equal(t, "/runs/run-1/plan/design_doc.md", p)
}

func TestLayout_Contains_AcceptsRootAndDescendants(t *testing.T) {
	l := runstore.NewLayout("/runs", "run-1")
	require.True(t, l.Contains("/runs/run-1"))
	require.True(t, l.Contains("/runs/run-1/signal/receipts/triage.json"))
	require.False(t, l.Contains("/runs/run-2/signal/receipts/triage.json"))
	require.False(t, l.Contains("/runs/run-12/signal/receipts/triage.json"))
}

func TestLayout_CheckWithinRoot_RejectsEscape(t *testing.T) {
	l := runstore.NewLayout("/runs", "run-1")
	require.NoError(t, l.CheckWithinRoot("/runs/run-1/signal/receipts/triage.json"))
	require.Error(t, l.CheckWithinRoot("/runs/other/signal/receipts/triage.json"))
	require.Error(t, l.CheckWithinRoot("/runs/run-1/../run-2/receipts/triage.json"))
}
