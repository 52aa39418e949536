// Package runstore implements the Run Store & Artifact Writer (spec §4.1):
// deterministic, crash-safe placement of every artifact under
// RUN_BASE/<run_id>/<flow_key>/.
package runstore

import (
	"fmt"
	"path"
	"strings"

	"github.com/stepflow-dev/harness/internal/harnesserr"
)

// Layout derives the canonical on-disk paths for one run. All paths are
// deterministic from (run_id, flow_key, step_id, agent_key) per spec
// invariant 1, normalized to forward slashes, lowercase with hyphens, with
// no timestamps embedded in filenames.
type Layout struct {
	Root  string
	RunID string
}

// NewLayout constructs a Layout rooted at base/runID, with both parts
// normalized (forward slashes, lowercase, underscores turned into hyphens).
func NewLayout(base, runID string) Layout {
	return Layout{Root: path.Join(normalize(base), normalize(runID)), RunID: runID}
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(filepathToSlash(s), "_", "-"))
}

func filepathToSlash(s string) string {
	return strings.ReplaceAll(s, "\\", "/")
}

// FlowDir returns the root directory for one flow within the run.
func (l Layout) FlowDir(flowKey string) string {
	return path.Join(l.Root, normalize(flowKey))
}

// ReceiptPath returns <run>/<flow>/receipts/<step>-<agent>.json.
func (l Layout) ReceiptPath(flowKey, stepID, agentKey string) string {
	return path.Join(l.FlowDir(flowKey), "receipts", fmt.Sprintf("%s-%s.json", normalize(stepID), normalize(agentKey)))
}

// HandoffPath returns <run>/<flow>/handoffs/<step>-<agent>.json.
func (l Layout) HandoffPath(flowKey, stepID, agentKey string) string {
	return path.Join(l.FlowDir(flowKey), "handoffs", fmt.Sprintf("%s-%s.json", normalize(stepID), normalize(agentKey)))
}

// StepLogPath returns <run>/<flow>/logs/<step>.jsonl.
func (l Layout) StepLogPath(flowKey, stepID string) string {
	return path.Join(l.FlowDir(flowKey), "logs", fmt.Sprintf("%s.jsonl", normalize(stepID)))
}

// RunLogPath returns <run>/logs/run.jsonl.
func (l Layout) RunLogPath() string {
	return path.Join(l.Root, "logs", "run.jsonl")
}

// TranscriptPath returns <run>/<flow>/llm/<step>-<agent>-<engine>.jsonl.
func (l Layout) TranscriptPath(flowKey, stepID, agentKey, engine string) string {
	return path.Join(l.FlowDir(flowKey), "llm", fmt.Sprintf("%s-%s-%s.jsonl", normalize(stepID), normalize(agentKey), normalize(engine)))
}

// AttemptTranscriptPath returns
// <run>/<flow>/llm/<step>-<agent>-attempt-N.jsonl, the microloop attempt
// transcript naming from spec invariant 3.
func (l Layout) AttemptTranscriptPath(flowKey, stepID, agentKey string, attempt int) string {
	return path.Join(l.FlowDir(flowKey), "llm", fmt.Sprintf("%s-%s-attempt-%d.jsonl", normalize(stepID), normalize(agentKey), attempt))
}

// RoutingDecisionsPath returns <run>/<flow>/routing/decisions.jsonl.
func (l Layout) RoutingDecisionsPath(flowKey string) string {
	return path.Join(l.FlowDir(flowKey), "routing", "decisions.jsonl")
}

// RoutingInjectionPath returns <run>/<flow>/routing/injections/<id>.json.
func (l Layout) RoutingInjectionPath(flowKey, id string) string {
	return path.Join(l.FlowDir(flowKey), "routing", "injections", fmt.Sprintf("%s.json", normalize(id)))
}

// DomainArtifactPath returns <run>/<flow>/<name>, used for decision
// artifacts and other flow-level domain files.
func (l Layout) DomainArtifactPath(flowKey, name string) string {
	return path.Join(l.FlowDir(flowKey), name)
}

// SelftestReportPath returns <run>/build/selftest_report.json (spec §4.7).
func (l Layout) SelftestReportPath() string {
	return path.Join(l.FlowDir("build"), "selftest_report.json")
}

// DegradationLogPath returns <run>/build/selftest_degradations.log.
func (l Layout) DegradationLogPath() string {
	return path.Join(l.FlowDir("build"), "selftest_degradations.log")
}

// Contains reports whether candidate lies within the run root, guarding
// against PathViolation (spec §4.1).
func (l Layout) Contains(candidate string) bool {
	root := path.Clean(l.Root)
	clean := path.Clean(filepathToSlash(candidate))
	return clean == root || strings.HasPrefix(clean, root+"/")
}

// CheckWithinRoot returns a PathViolation error when candidate escapes the
// run root.
func (l Layout) CheckWithinRoot(candidate string) error {
	if !l.Contains(candidate) {
		return harnesserr.New(harnesserr.KindPathViolation, "runstore", fmt.Sprintf("path %q escapes run root %q", candidate, l.Root))
	}
	return nil
}
