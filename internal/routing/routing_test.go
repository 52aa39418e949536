package routing_test

import (
	"testing"

	"github.com/stepflow-dev/harness/internal/routing"
	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestSignature_DeterministicRegardlessOfMapOrder(t *testing.T) {
	a := routing.ProgressInputs{
		CriticVerdicts:   map[string]schema.CriticVerdict{"reviewer": schema.VerdictVerified, "gate": schema.VerdictUnverified},
		PytestSummary:    "12 passed, 0 failed",
		FRStatus:         map[string]int{"FR-1": 1, "FR-2": 0},
		ChangedArtifacts: []string{"b.go", "a.go"},
	}
	b := routing.ProgressInputs{
		CriticVerdicts:   map[string]schema.CriticVerdict{"gate": schema.VerdictUnverified, "reviewer": schema.VerdictVerified},
		PytestSummary:    "12 passed, 0 failed",
		FRStatus:         map[string]int{"FR-2": 0, "FR-1": 1},
		ChangedArtifacts: []string{"a.go", "b.go"},
	}
	require.Equal(t, routing.Signature(a), routing.Signature(b))
}

func TestSignature_DiffersOnContentChange(t *testing.T) {
	a := routing.ProgressInputs{PytestSummary: "12 passed"}
	b := routing.ProgressInputs{PytestSummary: "11 passed"}
	require.NotEqual(t, routing.Signature(a), routing.Signature(b))
}

func TestStallTracker_DetectsTwoConsecutiveIdenticalSignatures(t *testing.T) {
	tr := routing.NewStallTracker()
	require.False(t, tr.Observe("build", "draft", "sig-a"))
	require.True(t, tr.Observe("build", "draft", "sig-a"))
	require.False(t, tr.Observe("build", "draft", "sig-b"))
}

func TestStallTracker_IndependentPerStep(t *testing.T) {
	tr := routing.NewStallTracker()
	require.False(t, tr.Observe("build", "draft", "sig-a"))
	require.False(t, tr.Observe("build", "review", "sig-a"))
}

func TestDetourCatalog_ExactMatchOnly(t *testing.T) {
	cat := routing.DetourCatalog{"missing_fixture": "regen-fixtures"}
	step, ok := cat.Lookup("missing_fixture")
	require.True(t, ok)
	require.Equal(t, "regen-fixtures", step)

	_, ok = cat.Lookup("unrelated_tag")
	require.False(t, ok)
}

func TestRecursionGuard_AllowsOnceThenEscalates(t *testing.T) {
	g := routing.NewRecursionGuard()
	require.True(t, g.Enter("build-step"))
	require.False(t, g.Enter("build-step"))
}
