package budget_test

import (
	"strings"
	"testing"

	"github.com/stepflow-dev/harness/internal/budget"
	"github.com/stepflow-dev/harness/internal/config"
	"github.com/stretchr/testify/require"
)

func TestAssemble_Deterministic(t *testing.T) {
	b := config.Budget{ContextTotal: 1000, HistoryRecentMax: 200, HistoryOlderMax: 100}
	frags := []budget.Fragment{{Name: "spec", Text: "do the thing"}}
	history := []budget.HistoryItem{
		{StepID: "a", Full: "full-a", Summary: "sum-a"},
		{StepID: "b", Full: "full-b", Summary: "sum-b"},
	}

	r1, err := budget.Assemble(b, frags, history)
	require.NoError(t, err)
	r2, err := budget.Assemble(b, frags, history)
	require.NoError(t, err)
	require.Equal(t, r1.Prompt, r2.Prompt, "identical inputs must produce a byte-identical prompt")
	require.False(t, r1.Truncation.Truncated)
	require.Equal(t, 2, r1.Truncation.StepsIncluded)
}

func TestAssemble_OverflowDropsOldestFirst(t *testing.T) {
	b := config.Budget{ContextTotal: 50, HistoryRecentMax: 12, HistoryOlderMax: 0}
	history := []budget.HistoryItem{
		{StepID: "old", Full: "0123456789", Summary: "0123456789"},
		{StepID: "new", Full: "9876543210", Summary: "9876543210"},
	}
	r, err := budget.Assemble(b, nil, history)
	require.NoError(t, err)
	require.True(t, r.Truncation.Truncated)
	require.Equal(t, 1, r.Truncation.StepsIncluded)
	require.True(t, strings.Contains(r.Prompt, "9876543210"))
	require.False(t, strings.Contains(r.Prompt, "0123456789"))
}

func TestAssemble_BudgetInfeasible(t *testing.T) {
	b := config.Budget{ContextTotal: 5}
	frags := []budget.Fragment{{Name: "spec", Text: "way more than five chars"}}
	_, err := budget.Assemble(b, frags, nil)
	require.Error(t, err)
}

func TestAssemble_CharsUsedNeverExceedsBudget(t *testing.T) {
	b := config.Budget{ContextTotal: 30, HistoryRecentMax: 30, HistoryOlderMax: 30}
	history := []budget.HistoryItem{
		{StepID: "a", Full: "aaaaaaaaaaaaaaaaaaaa", Summary: "aa"},
		{StepID: "b", Full: "bbbbbbbbbbbbbbbbbbbb", Summary: "bb"},
		{StepID: "c", Full: "cccccccccccccccccccc", Summary: "cc"},
	}
	r, err := budget.Assemble(b, nil, history)
	require.NoError(t, err)
	require.LessOrEqual(t, r.Truncation.CharsUsed, r.Truncation.BudgetChars)
}
