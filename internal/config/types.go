// Package config loads and validates the static Flow/Agent/Profile
// registries that drive the orchestrator. Configuration is loaded once at
// startup; validation (the agent<->file<->registry bijection of spec §9)
// never runs mid-step.
package config

import "time"

// FlowKey identifies one of the six fixed pipeline flows.
type FlowKey string

const (
	FlowSignal FlowKey = "signal"
	FlowPlan   FlowKey = "plan"
	FlowBuild  FlowKey = "build"
	FlowGate   FlowKey = "gate"
	FlowDeploy FlowKey = "deploy"
	FlowWisdom FlowKey = "wisdom"
)

// AllFlowKeys lists the six flows in their fixed pipeline order.
var AllFlowKeys = []FlowKey{FlowSignal, FlowPlan, FlowBuild, FlowGate, FlowDeploy, FlowWisdom}

// Role is the agent role family declared by spec §3.
type Role string

const (
	RoleAuthor      Role = "author"
	RoleCritic      Role = "critic"
	RoleImplementer Role = "implementer"
	RoleReviewer    Role = "reviewer"
	RoleReporter    Role = "reporter"
	RoleOther       Role = "other"
)

// Budget overrides the context-budgeter's three knobs. Zero fields inherit
// from the next layer up (step -> flow -> profile -> built-in default).
type Budget struct {
	ContextTotal     int `yaml:"context_total,omitempty" toml:"context_total,omitempty"`
	HistoryRecentMax int `yaml:"history_recent_max,omitempty" toml:"history_recent_max,omitempty"`
	HistoryOlderMax  int `yaml:"history_older_max,omitempty" toml:"history_older_max,omitempty"`
}

// IsZero reports whether every field of the budget is unset.
func (b Budget) IsZero() bool {
	return b.ContextTotal == 0 && b.HistoryRecentMax == 0 && b.HistoryOlderMax == 0
}

// Merge layers override on top of b, returning a new Budget where override's
// nonzero fields win.
func (b Budget) Merge(override Budget) Budget {
	out := b
	if override.ContextTotal != 0 {
		out.ContextTotal = override.ContextTotal
	}
	if override.HistoryRecentMax != 0 {
		out.HistoryRecentMax = override.HistoryRecentMax
	}
	if override.HistoryOlderMax != 0 {
		out.HistoryOlderMax = override.HistoryOlderMax
	}
	return out
}

// DefaultBudget is the built-in default used when no step, flow, or profile
// override applies.
var DefaultBudget = Budget{ContextTotal: 24000, HistoryRecentMax: 8000, HistoryOlderMax: 4000}

// Step is the immutable definition of one step within a flow (spec §3).
type Step struct {
	StepID          string        `yaml:"step_id"`
	AgentKey        string        `yaml:"agent_key"`
	Role            Role          `yaml:"role"`
	RequiredInputs  []string      `yaml:"required_inputs,omitempty"`
	RequiredOutputs []string      `yaml:"required_outputs,omitempty"`
	OptionalOutputs []string      `yaml:"optional_outputs,omitempty"`
	LoopPartner     string        `yaml:"loop_partner,omitempty"`
	Budget          Budget        `yaml:"budget,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	ParallelSafe    bool          `yaml:"parallel_safe,omitempty"`
}

// Agent is a named role definition (spec §3). Agents are invoked; they own
// no state across steps.
type Agent struct {
	AgentKey     string   `yaml:"agent_key"`
	Description  string   `yaml:"description,omitempty"`
	ColorTag     string   `yaml:"color_tag,omitempty"`
	Skills       []string `yaml:"skills,omitempty"`
	ModelSize    string   `yaml:"model_size,omitempty"`
}

// Flow is the named, versioned configuration of an ordered list of steps
// (spec §3). Flows are static; an instantiated FlowRun executes one against
// a specific run_id.
type Flow struct {
	Key                FlowKey  `yaml:"key"`
	Title              string   `yaml:"title"`
	Version            string   `yaml:"version"`
	Steps              []Step   `yaml:"steps"`
	Budget             Budget   `yaml:"budget,omitempty"`
	DecisionArtifacts  []string `yaml:"decision_artifacts,omitempty"`
	IterationCap       int      `yaml:"iteration_cap,omitempty"`
}

// StepByID returns the step with the given id, or false if not found.
func (f Flow) StepByID(id string) (Step, bool) {
	for _, s := range f.Steps {
		if s.StepID == id {
			return s, true
		}
	}
	return Step{}, false
}

// IndexOf returns the declared-order index of the step with the given id, or
// -1 if not found. Loop partners are referenced by index, never by pointer,
// per spec §9.
func (f Flow) IndexOf(stepID string) int {
	for i, s := range f.Steps {
		if s.StepID == stepID {
			return i
		}
	}
	return -1
}

// Registry is the fully loaded and validated static configuration: every
// flow, every agent, and the profile defaults layered beneath them.
type Registry struct {
	Flows   map[FlowKey]Flow
	Agents  map[string]Agent
	Profile Profile
}

// Profile carries host-level defaults layered beneath flow/step overrides:
// budget defaults, per-artifact caps, and the microloop iteration cap.
type Profile struct {
	Budget            Budget `toml:"budget"`
	MaxIterations     int    `toml:"max_iterations"`
	ArtifactCapBytes  int64  `toml:"artifact_cap_bytes"`
	HandoffCapMinimal int    `toml:"handoff_cap_minimal"`
	HandoffCapStandard int   `toml:"handoff_cap_standard"`
	HandoffCapHeavy   int    `toml:"handoff_cap_heavy"`
}

// DefaultProfile matches the built-in defaults named in spec §3/§4.4.
var DefaultProfile = Profile{
	Budget:             DefaultBudget,
	MaxIterations:      3,
	ArtifactCapBytes:   8 << 20,
	HandoffCapMinimal:  500,
	HandoffCapStandard: 2000,
	HandoffCapHeavy:    5000,
}
