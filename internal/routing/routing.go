// Package routing implements the Routing Protocol (spec §4.5, §4.6):
// progress-signature stall detection, the fixed detour catalog, and
// per-top-level-step detour recursion limiting. Decision priority and the
// append-only decision/injection record shapes live in package schema;
// this package is the orchestrator-facing logic built on top of them.
package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/stepflow-dev/harness/internal/schema"
)

// ProgressInputs is everything a progress signature is hashed over (spec
// §4.6): critic verdict fields, the pytest summary line, a numeric FR-status
// map, and the set of changed output artifact paths.
type ProgressInputs struct {
	CriticVerdicts   map[string]schema.CriticVerdict
	PytestSummary    string
	FRStatus         map[string]int
	ChangedArtifacts []string
}

// Signature computes the stable progress-signature hash for one iteration.
// Map keys are sorted and slices are sorted before hashing so the result
// depends only on content, never on map/slice iteration order.
func Signature(in ProgressInputs) string {
	verdictKeys := make([]string, 0, len(in.CriticVerdicts))
	for k := range in.CriticVerdicts {
		verdictKeys = append(verdictKeys, k)
	}
	sort.Strings(verdictKeys)
	verdicts := make(map[string]schema.CriticVerdict, len(in.CriticVerdicts))
	for _, k := range verdictKeys {
		verdicts[k] = in.CriticVerdicts[k]
	}

	frKeys := make([]string, 0, len(in.FRStatus))
	for k := range in.FRStatus {
		frKeys = append(frKeys, k)
	}
	sort.Strings(frKeys)
	fr := make(map[string]int, len(in.FRStatus))
	for _, k := range frKeys {
		fr[k] = in.FRStatus[k]
	}

	artifacts := append([]string(nil), in.ChangedArtifacts...)
	sort.Strings(artifacts)

	canonical := struct {
		CriticVerdicts   map[string]schema.CriticVerdict `json:"critic_verdicts"`
		PytestSummary    string                           `json:"pytest_summary"`
		FRStatus         map[string]int                   `json:"fr_status"`
		ChangedArtifacts []string                          `json:"changed_artifacts"`
	}{verdicts, in.PytestSummary, fr, artifacts}

	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// StallTracker remembers the last progress signature observed per (flow,
// step) pair and reports a stall when the same signature is observed twice
// in a row (spec §4.1 "Microloop").
type StallTracker struct {
	last map[string]string
}

// NewStallTracker constructs an empty tracker.
func NewStallTracker() *StallTracker {
	return &StallTracker{last: make(map[string]string)}
}

// Observe records sig for (flowKey, stepID) and reports whether it is a
// stall — identical to the signature observed on the immediately preceding
// call for the same pair.
func (t *StallTracker) Observe(flowKey, stepID, sig string) (stalled bool) {
	key := flowKey + "/" + stepID
	prev, seen := t.last[key]
	t.last[key] = sig
	return seen && prev == sig
}

// Reset clears the remembered signature for (flowKey, stepID), used when a
// microloop terminates so a later, unrelated loop over the same step starts
// fresh.
func (t *StallTracker) Reset(flowKey, stepID string) {
	delete(t.last, flowKey+"/"+stepID)
}

// DetourCatalog is the fixed, closed `signature_pattern -> sidequest_step`
// table spec §4.6 requires: matching is exact equality on a
// forensic_summary tag, never free-form inference.
type DetourCatalog map[string]string

// Lookup returns the sidequest step id for forensicSummary, or ("", false)
// if no entry matches — callers must then route ESCALATE per spec §4.6.
func (c DetourCatalog) Lookup(forensicSummary string) (string, bool) {
	step, ok := c[forensicSummary]
	return step, ok
}

// RecursionGuard enforces "a detour may recurse at most once per top-level
// step; further recursion is ESCALATE" (spec §4.6).
type RecursionGuard struct {
	depth map[string]int
}

// NewRecursionGuard constructs an empty guard.
func NewRecursionGuard() *RecursionGuard {
	return &RecursionGuard{depth: make(map[string]int)}
}

// Enter records one detour entry for topLevelStepID and reports whether it
// is still permitted (depth <= 1 after this call). A caller that receives
// false must route ESCALATE instead of running the detour.
func (g *RecursionGuard) Enter(topLevelStepID string) (allowed bool) {
	g.depth[topLevelStepID]++
	return g.depth[topLevelStepID] <= 1
}

// Reset clears recursion depth for topLevelStepID once its detour (and any
// nested recursion) has fully resolved.
func (g *RecursionGuard) Reset(topLevelStepID string) {
	delete(g.depth, topLevelStepID)
}
