package schema_test

import (
	"testing"

	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestDecision_Priority_OrdersHighestAuthorityFirst(t *testing.T) {
	require.Less(t, schema.DecisionTerminate.Priority(), schema.DecisionEscalate.Priority())
	require.Less(t, schema.DecisionEscalate.Priority(), schema.DecisionInjectFlow.Priority())
	require.Less(t, schema.DecisionInjectFlow.Priority(), schema.DecisionDetour.Priority())
	require.Less(t, schema.DecisionDetour.Priority(), schema.DecisionLoop.Priority())
	require.Less(t, schema.DecisionLoop.Priority(), schema.DecisionContinue.Priority())
}

func TestDecision_Priority_UnknownSortsLast(t *testing.T) {
	require.Greater(t, schema.Decision("bogus").Priority(), schema.DecisionContinue.Priority())
}

func TestHighestAuthority_EmptySignalsImpliesContinue(t *testing.T) {
	require.Equal(t, schema.DecisionContinue, schema.HighestAuthority(nil))
}

func TestHighestAuthority_PicksHighestAuthoritySignal(t *testing.T) {
	signals := []schema.Decision{schema.DecisionLoop, schema.DecisionEscalate, schema.DecisionDetour}
	require.Equal(t, schema.DecisionEscalate, schema.HighestAuthority(signals))
}

func TestHighestAuthority_TerminateBeatsEverything(t *testing.T) {
	signals := []schema.Decision{schema.DecisionInjectFlow, schema.DecisionTerminate, schema.DecisionEscalate}
	require.Equal(t, schema.DecisionTerminate, schema.HighestAuthority(signals))
}

func TestDecisionRecord_ContinueIsNeverConstructedForLogging(t *testing.T) {
	rec := schema.DecisionRecord{Decision: schema.DecisionDetour, Reason: "gate lint failed twice"}
	require.NotEqual(t, schema.DecisionContinue, rec.Decision)
}

func TestInjection_CarriesSubFlowReference(t *testing.T) {
	inj := schema.Injection{
		ID: "inj-1", RunID: "run-1", FlowKey: "build", StepID: "drafter",
		SubFlowKey: "plan", Reason: "missing design doc",
	}
	require.Equal(t, "plan", inj.SubFlowKey)
	require.Empty(t, inj.Metadata)
}
