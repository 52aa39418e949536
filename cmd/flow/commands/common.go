package commands

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/stepflow-dev/harness/internal/config"
	"github.com/stepflow-dev/harness/internal/flow"
	"github.com/stepflow-dev/harness/internal/harnesserr"
	"github.com/stepflow-dev/harness/internal/routing"
	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stepflow-dev/harness/internal/step"
	"github.com/stepflow-dev/harness/internal/telemetry"
	"github.com/stepflow-dev/harness/internal/transport"
)

var flowKeys = []config.FlowKey{
	config.FlowSignal, config.FlowPlan, config.FlowBuild, config.FlowGate, config.FlowDeploy, config.FlowWisdom,
}

// defaultDetours is the fixed, closed forensic-summary -> sidequest-step
// table (spec §4.6). It is empty by default; a host deploying this harness
// against a specific codebase populates it with its own sidequest steps.
var defaultDetours = routing.DetourCatalog{}

func buildLogger(cmd *cobra.Command) telemetry.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return telemetry.Noop{}
	}
	return telemetry.NewClueLogger()
}

func resolveRunBase(cmd *cobra.Command, env config.Env) string {
	if v, _ := cmd.Flags().GetString("run-base"); v != "" {
		return v
	}
	return env.RunBase
}

// buildOrchestrator wires the Registry, Step Engine, and run Store for a
// single CLI invocation against runID. The transport defaults to the
// deterministic Stub per spec §6's SWARM_CLAUDE_STEP_ENGINE_MODE=stub
// default; a real deployment swaps this for a concrete transport outside
// this module.
func buildOrchestrator(cmd *cobra.Command, runID string) (*flow.Orchestrator, *runstore.Store, error) {
	env := config.FromEnviron()
	runBase := resolveRunBase(cmd, env)
	log := buildLogger(cmd)

	reg, err := config.LoadDefault(config.DefaultProfile)
	if err != nil {
		return nil, nil, err
	}

	store := runstore.New(runBase, runID, reg.Profile.ArtifactCapBytes, log)

	tp := selectTransport(env)
	steps := step.New(tp, store, log, "flow-cli", string(env.ClaudeStepEngineMode))
	if env.TransportRateLimitPerMinute > 0 {
		interval := time.Minute / time.Duration(env.TransportRateLimitPerMinute)
		steps.Limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	orch := flow.New(*reg, steps, store, log, defaultDetours)
	return orch, store, nil
}

func selectTransport(env config.Env) transport.Transport {
	return transport.NewStub(nil)
}

func requireRunID(args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", newExitError(2, "run_id is required: flow <cmd> <run_id>")
	}
	return args[0], nil
}

// kindExitCode extracts the spec §6 exit code from err if it carries a
// harnesserr.Error, otherwise falls back to 1 (blocking failure).
func kindExitCode(err error) int {
	if herr, ok := err.(*harnesserr.Error); ok {
		return herr.Kind().ExitCode()
	}
	return 1
}
