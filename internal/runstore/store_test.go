package runstore_test

import (
	"testing"
	"time"

	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *runstore.Store {
	t.Helper()
	return runstore.New(t.TempDir(), "run-1", 0, nil)
}

func TestStore_WriteReceipt_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	r := schema.Receipt{
		RunID: "run-1", FlowKey: "signal", StepID: "triage", AgentKey: "signal_triage",
		Status: schema.StatusPass, StartedAt: time.Now(), EndedAt: time.Now(),
	}
	require.NoError(t, s.WriteReceipt(r))

	got, err := s.ReadReceipt("signal", "triage", "signal_triage")
	require.NoError(t, err)
	require.Equal(t, schema.StatusPass, got.Status)
	require.Equal(t, schema.ReceiptSchemaVersion, got.SchemaVersion)
}

func TestStore_WriteReceipt_RejectsMissingRequiredFields(t *testing.T) {
	s := newTestStore(t)
	err := s.WriteReceipt(schema.Receipt{Status: schema.StatusPass})
	require.Error(t, err)
}

func TestStore_WriteHandoff_RejectsOverflowingTier(t *testing.T) {
	s := newTestStore(t)
	env := schema.Envelope{
		Tier: schema.TierMinimal, FromStep: "draft", ToStep: "review",
		Notes: string(make([]byte, 3000)),
	}
	err := s.WriteHandoff("build", "draft", "drafter", env)
	require.Error(t, err)
}

func TestStore_WriteHandoff_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	env := schema.Envelope{Tier: schema.TierStandard, FromStep: "draft", ToStep: "review", Notes: "ok"}
	require.NoError(t, s.WriteHandoff("build", "draft", "drafter", env))

	got, err := s.ReadHandoff("build", "draft", "drafter")
	require.NoError(t, err)
	require.Equal(t, "ok", got.Notes)
}

func TestStore_AppendRoutingDecision_ReadsBackInOrder(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendRoutingDecision("gate", schema.DecisionRecord{Decision: schema.DecisionDetour, Reason: "lint failed"}))
	require.NoError(t, s.AppendRoutingDecision("gate", schema.DecisionRecord{Decision: schema.DecisionLoop, Reason: "retry"}))

	decisions, err := s.ReadRoutingDecisions("gate")
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	require.Equal(t, schema.DecisionDetour, decisions[0].Decision)
	require.Equal(t, schema.DecisionLoop, decisions[1].Decision)
}

func TestStore_ReadRoutingDecisions_EmptyWhenNoneWritten(t *testing.T) {
	s := newTestStore(t)
	decisions, err := s.ReadRoutingDecisions("gate")
	require.NoError(t, err)
	require.Empty(t, decisions)
}

func TestStore_AppendDegradation_RejectsKernelTier(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendDegradation(schema.DegradationEntry{Tier: schema.TierKernel, Status: schema.StatusFail})
	require.Error(t, err)
}

func TestStore_AppendDegradation_AcceptsGovernanceTier(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendDegradation(schema.DegradationEntry{Tier: schema.TierGovernance, Status: schema.StatusFail, StepID: "lint"})
	require.NoError(t, err)
}

func TestStore_ArtifactExists_ScopedToFlowDirectory(t *testing.T) {
	s := newTestStore(t)
	require.False(t, s.ArtifactExists("plan", "design_doc.md"))

	require.NoError(t, s.Writer.Write(s.Layout.DomainArtifactPath("plan", "design_doc.md"), []byte("# design")))
	require.True(t, s.ArtifactExists("plan", "design_doc.md"))
	require.False(t, s.ArtifactExists("build", "design_doc.md"))
}

func TestStore_WriteInjection_WritesRetrievablePath(t *testing.T) {
	s := newTestStore(t)
	inj := schema.Injection{ID: "inj-1", RunID: "run-1", FlowKey: "build", SubFlowKey: "plan", Reason: "missing design doc"}
	require.NoError(t, s.WriteInjection("build", inj))
	require.True(t, runstore.Exists(s.Layout.RoutingInjectionPath("build", "inj-1")))
}
