// Package selftest implements the Selftest Runner (spec §4.7): a static set
// of 16 tiered SelfTestStep definitions executed in topological order under
// strict/degraded/kernel-only modes, with override-file handling and a
// Doctor classifier, grounded on the teacher's registry-validated,
// dependency-ordered startup discipline adapted from "validate the agent
// registry once" to "execute a DAG of health checks once".
package selftest

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/stepflow-dev/harness/internal/harnesserr"
	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stepflow-dev/harness/internal/schema"
)

// Mode selects which tiers block flow advancement (spec §4.7).
type Mode string

const (
	ModeStrict     Mode = "strict"
	ModeDegraded   Mode = "degraded"
	ModeKernelOnly Mode = "kernel-only"
)

// Step is one static SelfTestStep definition.
type Step struct {
	ID           string
	Tier         schema.SelftestTier
	Severity     schema.Severity
	Category     string
	Command      []string
	Dependencies []string
	ACIDs        []string
}

// Override suppresses one step, recorded with an audit trail (spec §4.7).
type Override struct {
	StepID    string    `json:"step_id"`
	Reason    string    `json:"reason"`
	Approver  string    `json:"approver"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the override still applies at t.
func (o Override) Active(t time.Time) bool {
	return o.ExpiresAt.IsZero() || t.Before(o.ExpiresAt)
}

// StepResult is one step's outcome within a run.
type StepResult struct {
	Step        Step
	Status      schema.Status
	Reason      string
	Message     string
	DurationMs  int64
	Overridden  bool
	Blocking    bool
}

// Runner executes the catalog of Steps in dependency order.
type Runner struct {
	Catalog []Step
	Store   *runstore.Store
	Exec    func(ctx context.Context, command []string) (string, error)
}

// NewRunner constructs a Runner. If exec is nil, commands are run via
// os/exec, matching a real CI invocation.
func NewRunner(catalog []Step, store *runstore.Store, exec func(ctx context.Context, command []string) (string, error)) *Runner {
	if exec == nil {
		exec = runCommand
	}
	return &Runner{Catalog: catalog, Store: store, Exec: exec}
}

func runCommand(ctx context.Context, command []string) (string, error) {
	if len(command) == 0 {
		return "", fmt.Errorf("selftest: empty command")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Report is the versioned selftest report (spec §4.7 "Report (v2)").
type Report struct {
	Version  int            `json:"version"`
	Metadata ReportMetadata `json:"metadata"`
	Summary  ReportSummary  `json:"summary"`
	Results  []ReportResult `json:"results"`
}

// ReportMetadata identifies the run a report belongs to.
type ReportMetadata struct {
	RunID      string `json:"run_id"`
	Mode       Mode   `json:"mode"`
	Host       string `json:"host"`
	GitBranch  string `json:"git_branch"`
	GitCommit  string `json:"git_commit"`
	User       string `json:"user"`
}

// ReportSummary aggregates counts across every executed step.
type ReportSummary struct {
	Passed          int            `json:"passed"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	Total           int            `json:"total"`
	BySeverity      map[string]int `json:"by_severity"`
	ByCategory      map[string]int `json:"by_category"`
	TotalDurationMs int64          `json:"total_duration_ms"`
}

// ReportResult is one step's entry in Results.
type ReportResult struct {
	StepID     string       `json:"step_id"`
	Tier       schema.SelftestTier `json:"tier"`
	Severity   schema.Severity     `json:"severity"`
	Category   string       `json:"category"`
	Status     schema.Status `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	Message    string       `json:"message,omitempty"`
	DurationMs int64        `json:"duration_ms"`
	Overridden bool         `json:"overridden"`

	// Classification and ServiceIssueReason are the Doctor's verdict for
	// this result (spec §4.7), left zero-valued for PASS/SKIP results.
	Classification     Classification     `json:"classification,omitempty"`
	ServiceIssueReason ServiceIssueReason `json:"service_issue_reason,omitempty"`
}

// Run executes the catalog under mode, applying overrides and
// skipSteps, and returns every step's outcome plus the assembled report.
// Steps whose declared dependency failed are SKIPped rather than run.
func (r *Runner) Run(ctx context.Context, runID string, mode Mode, overrides []Override, skipSteps []string, meta ReportMetadata) ([]StepResult, Report, error) {
	ordered, err := topoSort(r.Catalog)
	if err != nil {
		return nil, Report{}, harnesserr.Wrap(harnesserr.KindConfig, "selftest", "topological sort", err)
	}

	skip := make(map[string]bool, len(skipSteps))
	for _, id := range skipSteps {
		skip[id] = true
	}
	overrideByStep := make(map[string]Override, len(overrides))
	now := time.Now().UTC()
	for _, o := range overrides {
		if o.Active(now) {
			overrideByStep[o.StepID] = o
		}
	}

	results := make([]StepResult, 0, len(ordered))
	status := make(map[string]schema.Status, len(ordered))

	for _, s := range ordered {
		if mode == ModeKernelOnly && s.Tier != schema.TierKernel {
			continue
		}

		if depFailed(s, status) {
			results = append(results, StepResult{Step: s, Status: schema.StatusSkip, Reason: "dependency_failed"})
			status[s.ID] = schema.StatusSkip
			continue
		}
		if skip[s.ID] {
			results = append(results, StepResult{Step: s, Status: schema.StatusSkip, Reason: "selftest_skip_steps"})
			status[s.ID] = schema.StatusSkip
			continue
		}
		if o, ok := overrideByStep[s.ID]; ok {
			if err := r.auditOverride(runID, s, o); err != nil {
				return nil, Report{}, err
			}
			results = append(results, StepResult{Step: s, Status: schema.StatusSkip, Reason: "override:" + o.Reason, Overridden: true})
			status[s.ID] = schema.StatusSkip
			continue
		}

		started := time.Now()
		out, execErr := r.Exec(ctx, s.Command)
		duration := time.Since(started).Milliseconds()

		res := StepResult{Step: s, DurationMs: duration, Message: out}
		if execErr != nil {
			res.Status = schema.StatusFail
			res.Reason = execErr.Error()
			res.Blocking = blocks(s.Tier, mode)
		} else {
			res.Status = schema.StatusPass
		}
		status[s.ID] = res.Status
		results = append(results, res)

		if res.Status != schema.StatusPass && s.Tier != schema.TierKernel {
			if err := r.Store.AppendDegradation(schema.DegradationEntry{
				StepID: s.ID, StepName: s.ID, Tier: s.Tier, Status: res.Status,
				Reason: res.Reason, Message: out, Severity: s.Severity,
			}); err != nil {
				return nil, Report{}, err
			}
		}
	}

	report := buildReport(results, mode, meta)
	return results, report, nil
}

// blocks reports whether a failing step of tier blocks under mode (spec
// §4.7: strict blocks KERNEL+GOVERNANCE, degraded blocks only KERNEL,
// kernel-only only ever runs KERNEL so any KERNEL failure there blocks).
func blocks(tier schema.SelftestTier, mode Mode) bool {
	switch mode {
	case ModeStrict:
		return tier == schema.TierKernel || tier == schema.TierGovernance
	case ModeDegraded, ModeKernelOnly:
		return tier == schema.TierKernel
	default:
		return tier == schema.TierKernel
	}
}

func depFailed(s Step, status map[string]schema.Status) bool {
	for _, dep := range s.Dependencies {
		if st, ok := status[dep]; ok && st != schema.StatusPass {
			return true
		}
	}
	return false
}

func (r *Runner) auditOverride(runID string, s Step, o Override) error {
	return r.Store.AppendRoutingDecision("selftest", schema.DecisionRecord{
		RunID: runID, FlowKey: "selftest", StepID: s.ID,
		Decision: schema.DecisionContinue, Reason: fmt.Sprintf("override approved_by=%s reason=%s", o.Approver, o.Reason),
	})
}

// ExitCode maps the result set to the CLI exit code convention of spec §6:
// 0 all pass or only non-blocking, 1 a blocking step failed.
func ExitCode(results []StepResult) int {
	for _, r := range results {
		if r.Blocking {
			return 1
		}
	}
	return 0
}

func buildReport(results []StepResult, mode Mode, meta ReportMetadata) Report {
	meta.Mode = mode
	summary := ReportSummary{
		BySeverity: map[string]int{},
		ByCategory: map[string]int{},
	}
	out := make([]ReportResult, 0, len(results))
	for _, r := range results {
		summary.Total++
		summary.TotalDurationMs += r.DurationMs
		switch r.Status {
		case schema.StatusPass:
			summary.Passed++
		case schema.StatusSkip:
			summary.Skipped++
		default:
			summary.Failed++
		}
		summary.BySeverity[string(r.Step.Severity)]++
		summary.ByCategory[r.Step.Category]++

		var classification Classification
		var serviceReason ServiceIssueReason
		if r.Status != schema.StatusPass && r.Status != schema.StatusSkip {
			classification = Classify(r)
			serviceReason = ClassifyServiceIssue(r)
		}

		out = append(out, ReportResult{
			StepID: r.Step.ID, Tier: r.Step.Tier, Severity: r.Step.Severity, Category: r.Step.Category,
			Status: r.Status, Reason: r.Reason, Message: r.Message, DurationMs: r.DurationMs, Overridden: r.Overridden,
			Classification: classification, ServiceIssueReason: serviceReason,
		})
	}
	return Report{Version: 2, Metadata: meta, Summary: summary, Results: out}
}

// topoSort orders catalog by declared Dependencies, erroring on a cycle.
func topoSort(catalog []Step) ([]Step, error) {
	byID := make(map[string]Step, len(catalog))
	for _, s := range catalog {
		byID[s.ID] = s
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(catalog))
	var order []Step
	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("cycle detected at %q (path %v)", id, path)
		}
		color[id] = gray
		s, ok := byID[id]
		if !ok {
			return fmt.Errorf("unknown dependency %q", id)
		}
		deps := append([]string(nil), s.Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, s)
		return nil
	}

	ids := make([]string, 0, len(catalog))
	for _, s := range catalog {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
