// Package budget implements the Context Budgeter (spec §4.2): prompt
// assembly for one step given prior receipts/handoffs and a three-knob
// budget (context_total, history_recent_max, history_older_max).
package budget

import (
	"strings"

	"github.com/stepflow-dev/harness/internal/config"
	"github.com/stepflow-dev/harness/internal/harnesserr"
	"github.com/stepflow-dev/harness/internal/schema"
)

// HistoryItem is one prior step's contribution to the prompt: Full is the
// complete receipt+handoff text available when the item is included among
// the "most recent" steps; Summary is the handoff-only text used when the
// item falls into the "older" tier.
type HistoryItem struct {
	StepID  string
	Full    string
	Summary string
}

// Fragment is a non-droppable prompt component (teaching notes, the current
// step's spec text, the minimal handoff from the immediate predecessor).
// The sum of all Fragments must fit inside ContextTotal or assembly fails
// with BudgetInfeasible (spec §4.2).
type Fragment struct {
	Name string
	Text string
}

// Result is the assembled prompt plus its truncation accounting.
type Result struct {
	Prompt     string
	Truncation schema.ContextTruncation
}

type inclusionKind int

const (
	excluded inclusionKind = iota
	includedFull
	includedSummary
)

// Assemble builds the prompt for one step. history is ordered oldest-first;
// the engine walks it most-recent-first when deciding inclusion so that any
// overflow drops the oldest steps first. Given identical inputs and
// budgets, Assemble is byte-identical across calls (spec §4.2 determinism
// requirement) because it performs no I/O and makes no time-based
// decisions.
func Assemble(b config.Budget, fragments []Fragment, history []HistoryItem) (Result, error) {
	effective := b
	if effective.ContextTotal == 0 {
		effective = config.DefaultBudget
	}

	nonDroppable := 0
	for _, f := range fragments {
		nonDroppable += len(f.Text)
	}
	if nonDroppable > effective.ContextTotal {
		return Result{}, harnesserr.New(harnesserr.KindBudgetInfeasible, "budget",
			"non-droppable fragments exceed context_total")
	}

	remaining := effective.ContextTotal - nonDroppable
	recentBudget := effective.HistoryRecentMax
	olderBudget := effective.HistoryOlderMax

	kinds := make([]inclusionKind, len(history))
	recentUsed, olderUsed, charsUsed := 0, 0, nonDroppable

	for i := len(history) - 1; i >= 0; i-- {
		item := history[i]
		switch {
		case recentUsed+len(item.Full) <= recentBudget && charsUsed+len(item.Full)-nonDroppable <= remaining:
			kinds[i] = includedFull
			recentUsed += len(item.Full)
			charsUsed += len(item.Full)
		case olderUsed+len(item.Summary) <= olderBudget && charsUsed+len(item.Summary)-nonDroppable <= remaining:
			kinds[i] = includedSummary
			olderUsed += len(item.Summary)
			charsUsed += len(item.Summary)
		default:
			kinds[i] = excluded
		}
	}

	var sb strings.Builder
	for _, f := range fragments {
		sb.WriteString(f.Text)
		sb.WriteString("\n")
	}

	stepsIncluded := 0
	for i, item := range history {
		switch kinds[i] {
		case includedFull:
			stepsIncluded++
			sb.WriteString(item.Full)
			sb.WriteString("\n")
		case includedSummary:
			stepsIncluded++
			sb.WriteString(item.Summary)
			sb.WriteString("\n")
		}
	}

	return Result{
		Prompt: sb.String(),
		Truncation: schema.ContextTruncation{
			StepsIncluded: stepsIncluded,
			StepsTotal:    len(history),
			CharsUsed:     charsUsed,
			BudgetChars:   effective.ContextTotal,
			Truncated:     stepsIncluded < len(history),
		},
	}, nil
}
