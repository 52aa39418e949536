package config

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/stepflow-dev/harness/internal/harnesserr"
	"gopkg.in/yaml.v3"
)

// flowDocument is the on-disk shape of a single flow YAML file.
type flowDocument struct {
	Flow Flow `yaml:"flow"`
}

// agentsDocument is the on-disk shape of the shared agents registry file.
type agentsDocument struct {
	Agents []Agent `yaml:"agents"`
}

// Load reads every "<flow_key>.yaml" file plus "agents.yaml" from dir,
// validates the agent<->file<->registry bijection, and returns a fully
// resolved Registry. Validation failures are KindConfig errors surfaced at
// load time, never mid-step (spec §9).
func Load(fsys fs.FS, dir string, profile Profile) (*Registry, error) {
	agentsPath := filepath.Join(dir, "agents.yaml")
	agentsRaw, err := fs.ReadFile(fsys, agentsPath)
	if err != nil {
		return nil, harnesserr.Wrap(harnesserr.KindConfig, "config", "read agents registry", err)
	}
	var agentsDoc agentsDocument
	if err := yaml.Unmarshal(agentsRaw, &agentsDoc); err != nil {
		return nil, harnesserr.Wrap(harnesserr.KindConfig, "config", "parse agents registry", err)
	}
	agents := make(map[string]Agent, len(agentsDoc.Agents))
	for _, a := range agentsDoc.Agents {
		if a.AgentKey == "" {
			return nil, harnesserr.New(harnesserr.KindConfig, "config", "agent entry missing agent_key")
		}
		if _, dup := agents[a.AgentKey]; dup {
			return nil, harnesserr.New(harnesserr.KindConfig, "config", fmt.Sprintf("duplicate agent_key %q", a.AgentKey))
		}
		agents[a.AgentKey] = a
	}

	flows := make(map[FlowKey]Flow, len(AllFlowKeys))
	for _, key := range AllFlowKeys {
		path := filepath.Join(dir, string(key)+".yaml")
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, harnesserr.Wrap(harnesserr.KindConfig, "config", fmt.Sprintf("read flow %q", key), err)
		}
		var doc flowDocument
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, harnesserr.Wrap(harnesserr.KindConfig, "config", fmt.Sprintf("parse flow %q", key), err)
		}
		doc.Flow.Key = key
		if err := validateFlow(doc.Flow, agents); err != nil {
			return nil, err
		}
		flows[key] = doc.Flow
	}

	return &Registry{Flows: flows, Agents: agents, Profile: profile}, nil
}

// validateFlow checks the invariants spec §9 requires to run at load time:
// every step's agent_key resolves in the registry, step ids are unique
// within the flow, and loop partners reference a real step index (the flow
// graph is a DAG of step indices plus an orthogonal loop-partner function —
// never a pointer cycle).
func validateFlow(f Flow, agents map[string]Agent) error {
	if len(f.Steps) == 0 {
		return harnesserr.New(harnesserr.KindConfig, "config", fmt.Sprintf("flow %q has no steps", f.Key))
	}
	seen := make(map[string]bool, len(f.Steps))
	for _, s := range f.Steps {
		if s.StepID == "" {
			return harnesserr.New(harnesserr.KindConfig, "config", fmt.Sprintf("flow %q has a step with empty step_id", f.Key))
		}
		if seen[s.StepID] {
			return harnesserr.New(harnesserr.KindConfig, "config", fmt.Sprintf("flow %q has duplicate step_id %q", f.Key, s.StepID))
		}
		seen[s.StepID] = true
		if _, ok := agents[s.AgentKey]; !ok {
			return harnesserr.New(harnesserr.KindConfig, "config", fmt.Sprintf("flow %q step %q references unknown agent_key %q", f.Key, s.StepID, s.AgentKey))
		}
	}
	for _, s := range f.Steps {
		if s.LoopPartner == "" {
			continue
		}
		if f.IndexOf(s.LoopPartner) < 0 {
			return harnesserr.New(harnesserr.KindConfig, "config", fmt.Sprintf("flow %q step %q loop_partner %q does not exist", f.Key, s.StepID, s.LoopPartner))
		}
	}
	return nil
}

// ResolveBudget returns the effective budget for a step using the layering
// order from spec §4.2: step override -> flow override -> profile default ->
// built-in default.
func ResolveBudget(profile Profile, flow Flow, step Step) Budget {
	b := DefaultBudget
	b = b.Merge(profile.Budget)
	b = b.Merge(flow.Budget)
	b = b.Merge(step.Budget)
	return b
}
