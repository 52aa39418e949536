// Package flow implements the Flow Orchestrator (spec §4.1, §4.5): step
// sequencing through one of the six fixed flows, author↔critic microloop
// management, Fix-forward BLOCKED semantics, and DETOUR/INJECT_FLOW/
// ESCALATE/TERMINATE handling. It is the component that ties budget, step,
// routing, and runstore together into one flow execution, grounded on the
// teacher's turn-loop orchestration shape (iterate steps, terminate a loop
// on a closed set of conditions, never block on ambiguity).
package flow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stepflow-dev/harness/internal/budget"
	"github.com/stepflow-dev/harness/internal/config"
	"github.com/stepflow-dev/harness/internal/harnesserr"
	"github.com/stepflow-dev/harness/internal/routing"
	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stepflow-dev/harness/internal/step"
	"github.com/stepflow-dev/harness/internal/telemetry"
)

// SubFlowRunner runs a named flow as a nested execution. *Orchestrator
// satisfies it through Run. Nothing in this module calls it: Run does not
// start a sub-flow on an INJECT_FLOW decision.
type SubFlowRunner interface {
	Run(ctx context.Context, runID string, flowKey config.FlowKey) (Result, error)
}

// Orchestrator runs one flow at a time against a Step Engine.
type Orchestrator struct {
	Registry    config.Registry
	Steps       *step.Engine
	Store       *runstore.Store
	Log         telemetry.Logger
	Detours     routing.DetourCatalog

	stalls    *routing.StallTracker
	recursion *routing.RecursionGuard
}

// New constructs an Orchestrator.
func New(reg config.Registry, steps *step.Engine, store *runstore.Store, log telemetry.Logger, detours routing.DetourCatalog) *Orchestrator {
	if log == nil {
		log = telemetry.Noop{}
	}
	return &Orchestrator{
		Registry: reg, Steps: steps, Store: store, Log: log, Detours: detours,
		stalls: routing.NewStallTracker(), recursion: routing.NewRecursionGuard(),
	}
}

// StepOutcome records one declared step's terminal state within a flow run,
// as returned in Result.Steps (the CLI prints or serializes these) so a run
// can be summarized without re-reading every receipt from disk.
type StepOutcome struct {
	StepID   string
	Status   schema.Status
	Decision schema.Decision
	Attempts int

	// ForensicSummary is the critic's detour-catalog tag (spec §4.6), carried
	// from step.Result so runDetour/runMicroloop never invent one.
	ForensicSummary string
	// CanFurtherIterationHelp carries the critic's own judgment of whether
	// another microloop iteration would help (spec §4.5).
	CanFurtherIterationHelp bool
}

// Result is what Run returns once the flow has fully advanced, terminated,
// or escalated.
type Result struct {
	FlowKey    config.FlowKey
	Steps      []StepOutcome
	Terminated bool
	Escalated  bool
}

// Run executes every step of flowKey in declared order, honoring loop
// partners, routing signals, and Fix-forward BLOCKED semantics.
func (o *Orchestrator) Run(ctx context.Context, runID string, flowKey config.FlowKey) (Result, error) {
	f, ok := o.Registry.Flows[flowKey]
	if !ok {
		return Result{}, harnesserr.New(harnesserr.KindConfig, "flow", fmt.Sprintf("unknown flow %q", flowKey))
	}

	res := Result{FlowKey: flowKey}
	history := make([]budget.HistoryItem, 0, len(f.Steps))

	visited := make(map[string]bool, len(f.Steps))
	for i := 0; i < len(f.Steps); i++ {
		s := f.Steps[i]
		if visited[s.StepID] {
			continue
		}
		visited[s.StepID] = true

		if !o.inputsSatisfied(flowKey, s) {
			res.Steps = append(res.Steps, StepOutcome{StepID: s.StepID, Status: schema.StatusSkip})
			continue
		}

		var outcome StepOutcome
		var err error
		if s.LoopPartner != "" {
			visited[s.LoopPartner] = true
			outcome, err = o.runMicroloop(ctx, runID, flowKey, f, s, &history)
		} else {
			outcome, err = o.runOnce(ctx, runID, flowKey, f, s, &history, 1)
		}
		if err != nil {
			return res, err
		}
		res.Steps = append(res.Steps, outcome)

		switch outcome.Decision {
		case schema.DecisionTerminate:
			res.Terminated = true
			return res, nil
		case schema.DecisionEscalate:
			res.Escalated = true
		case schema.DecisionDetour:
			if err := o.runDetour(ctx, runID, flowKey, s, outcome); err != nil {
				return res, err
			}
		case schema.DecisionInjectFlow:
			// runOnce has already appended the INJECT_FLOW routing decision.
			// No sub-flow is started and no routing/injections/<id>.json
			// object is written here.
		}
	}
	return res, nil
}

// inputsSatisfied applies Fix-forward BLOCKED semantics (spec §4.5): a
// step with a required input artifact missing from disk never blocks the
// flow, it SKIPs.
func (o *Orchestrator) inputsSatisfied(flowKey config.FlowKey, s config.Step) bool {
	for _, rel := range s.RequiredInputs {
		if !o.Store.ArtifactExists(string(flowKey), rel) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) runOnce(ctx context.Context, runID string, flowKey config.FlowKey, f config.Flow, s config.Step, history *[]budget.HistoryItem, attempt int) (StepOutcome, error) {
	agent := o.Registry.Agents[s.AgentKey]
	req := step.Request{
		RunID:     runID,
		FlowKey:   flowKey,
		Step:      s,
		Agent:     agent,
		Budget:    config.ResolveBudget(o.Registry.Profile, f, s),
		Attempt:   attempt,
		Fragments: []budget.Fragment{{Name: "step", Text: fmt.Sprintf("step_id=%s role=%s", s.StepID, s.Role)}},
		History:   *history,
	}

	result, err := o.Steps.Run(ctx, req)
	if err != nil && result.Receipt.Status == "" {
		return StepOutcome{}, err
	}

	decision := schema.HighestAuthority(result.Signals)
	if decision != schema.DecisionContinue {
		if writeErr := o.Store.AppendRoutingDecision(string(flowKey), schema.DecisionRecord{
			RunID: runID, FlowKey: string(flowKey), StepID: s.StepID,
			Decision: decision, Reason: "routing_signal",
		}); writeErr != nil {
			o.Log.Warn(ctx, "routing decision append failed", "error", writeErr.Error())
		}
	}

	full := fmt.Sprintf("step=%s status=%s", s.StepID, result.Receipt.Status)
	summary := full
	if result.WroteHandoff {
		summary = fmt.Sprintf("step=%s notes=%s", s.StepID, result.Handoff.Notes)
	}
	*history = append(*history, budget.HistoryItem{StepID: s.StepID, Full: full, Summary: summary})

	return StepOutcome{
		StepID:                  s.StepID,
		Status:                  result.Receipt.Status,
		Decision:                decision,
		Attempts:                attempt,
		ForensicSummary:         result.ForensicSummary,
		CanFurtherIterationHelp: result.CanFurtherIterationHelp,
	}, nil
}

// runMicroloop drives an author↔critic pair until one of the terminal
// conditions in spec §4.1 is reached: a CONTINUE-equivalent critic signal,
// an ESCALATE whose receipt marks further iteration as unhelpful, the
// iteration cap, or a progress-signature stall.
func (o *Orchestrator) runMicroloop(ctx context.Context, runID string, flowKey config.FlowKey, f config.Flow, author config.Step, history *[]budget.HistoryItem) (StepOutcome, error) {
	iterationCap := f.IterationCap
	if iterationCap <= 0 {
		iterationCap = o.Registry.Profile.MaxIterations
	}
	if iterationCap <= 0 {
		iterationCap = 3
	}
	critic, ok := f.StepByID(author.LoopPartner)
	if !ok {
		return StepOutcome{}, harnesserr.New(harnesserr.KindConfig, "flow", fmt.Sprintf("loop partner %q not found for step %q", author.LoopPartner, author.StepID))
	}

	var last StepOutcome
	for iteration := 1; iteration <= iterationCap; iteration++ {
		if _, err := o.runOnce(ctx, runID, flowKey, f, author, history, iteration); err != nil {
			return StepOutcome{}, err
		}
		criticOutcome, err := o.runOnce(ctx, runID, flowKey, f, critic, history, iteration)
		if err != nil {
			return StepOutcome{}, err
		}
		last = criticOutcome

		if criticOutcome.Decision == schema.DecisionContinue {
			o.stalls.Reset(string(flowKey), author.StepID)
			return criticOutcome, nil
		}
		if criticOutcome.Decision == schema.DecisionEscalate && !criticOutcome.CanFurtherIterationHelp {
			o.stalls.Reset(string(flowKey), author.StepID)
			return criticOutcome, nil
		}

		receipt, rerr := o.Store.ReadReceipt(string(flowKey), critic.StepID, critic.AgentKey)
		if rerr == nil {
			sig := routing.Signature(routing.ProgressInputs{CriticVerdicts: receipt.CriticVerdicts})
			if o.stalls.Observe(string(flowKey), author.StepID, sig) {
				last.ForensicSummary = "stall_identical_signature"
				last.Decision = schema.DecisionDetour
				if _, ok := o.Detours.Lookup(last.ForensicSummary); !ok {
					last.Decision = schema.DecisionEscalate
				}
				if err := o.Store.AppendRoutingDecision(string(flowKey), schema.DecisionRecord{
					RunID: runID, FlowKey: string(flowKey), StepID: critic.StepID,
					Decision: last.Decision, Reason: "stall_identical_signature", ForensicSummary: last.ForensicSummary,
				}); err != nil {
					o.Log.Warn(ctx, "stall decision append failed", "error", err.Error())
				}
				return last, nil
			}
		}
	}
	o.stalls.Reset(string(flowKey), author.StepID)
	last.Decision = schema.DecisionEscalate
	if err := o.Store.AppendRoutingDecision(string(flowKey), schema.DecisionRecord{
		RunID: runID, FlowKey: string(flowKey), StepID: critic.StepID,
		Decision: schema.DecisionEscalate, Reason: "max_iterations",
	}); err != nil {
		o.Log.Warn(ctx, "iteration-cap decision append failed", "error", err.Error())
	}
	return last, nil
}

// runDetour runs the matched sidequest step once, guarded against
// recursing more than once per top-level step (spec §4.6).
func (o *Orchestrator) runDetour(ctx context.Context, runID string, flowKey config.FlowKey, topLevel config.Step, outcome StepOutcome) error {
	f := o.Registry.Flows[flowKey]
	sidequestID, ok := o.Detours.Lookup(outcome.ForensicSummary)
	if !ok {
		return o.Store.AppendRoutingDecision(string(flowKey), schema.DecisionRecord{
			RunID: runID, FlowKey: string(flowKey), StepID: topLevel.StepID,
			Decision: schema.DecisionEscalate, Reason: "no_detour_catalog_match", ForensicSummary: outcome.ForensicSummary,
		})
	}
	if !o.recursion.Enter(topLevel.StepID) {
		return o.Store.AppendRoutingDecision(string(flowKey), schema.DecisionRecord{
			RunID: runID, FlowKey: string(flowKey), StepID: topLevel.StepID,
			Decision: schema.DecisionEscalate, Reason: "detour_recursion_limit_exceeded",
		})
	}
	defer o.recursion.Reset(topLevel.StepID)

	sidequest, ok := f.StepByID(sidequestID)
	if !ok {
		return harnesserr.New(harnesserr.KindConfig, "flow", fmt.Sprintf("detour target %q not found in flow %q", sidequestID, flowKey))
	}
	history := make([]budget.HistoryItem, 0, 1)
	_, err := o.runOnce(ctx, runID, flowKey, f, sidequest, &history, 1)
	return err
}

// NewInjectionID generates a unique id for one INJECT_FLOW decision's
// injection object filename.
func NewInjectionID() string {
	return uuid.NewString()
}
