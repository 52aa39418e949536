package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stepflow-dev/harness/internal/config"
	"github.com/stepflow-dev/harness/internal/flow"
	"github.com/stepflow-dev/harness/internal/schema"
)

// newFlowCommand builds one of the six fixed-flow subcommands (spec §6:
// `flow <cmd> <run_id> [options]` where cmd is one of signal/plan/build/
// gate/deploy/wisdom).
func newFlowCommand(key config.FlowKey) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <run_id>", key),
		Short: fmt.Sprintf("Run the %s flow against an existing run", key),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := requireRunID(args)
			if err != nil {
				return err
			}

			orch, _, err := buildOrchestrator(cmd, runID)
			if err != nil {
				return err
			}

			until, _ := cmd.Flags().GetString("until")
			only, _ := cmd.Flags().GetString("step")
			plan, _ := cmd.Flags().GetBool("plan")

			scoped, err := scopeRegistry(*orch, key, only, until)
			if err != nil {
				return err
			}
			orch.Registry = scoped

			if plan {
				return printPlan(cmd, scoped.Flows[key])
			}

			res, err := orch.Run(cmd.Context(), runID, key)
			if err != nil {
				return newExitError(kindExitCode(err), "%s: %v", key, err)
			}

			if err := emitResult(cmd, res); err != nil {
				return err
			}
			return exitFromResult(res)
		},
	}

	cmd.Flags().String("step", "", "run only this step id (plus its loop partner, if any)")
	cmd.Flags().String("until", "", "stop after this step id completes")
	cmd.Flags().Bool("plan", false, "print the steps that would run without executing them")
	return cmd
}

// scopeRegistry returns a copy of orch.Registry with flowKey's step list
// narrowed by --step/--until, leaving every other flow untouched.
func scopeRegistry(orch flow.Orchestrator, flowKey config.FlowKey, only, until string) (config.Registry, error) {
	reg := orch.Registry
	if only == "" && until == "" {
		return reg, nil
	}
	f, ok := reg.Flows[flowKey]
	if !ok {
		return reg, newExitError(2, "unknown flow %q", flowKey)
	}

	var steps []config.Step
	switch {
	case only != "":
		s, ok := f.StepByID(only)
		if !ok {
			return reg, newExitError(2, "flow %q has no step %q", flowKey, only)
		}
		steps = []config.Step{s}
		if s.LoopPartner != "" {
			if partner, ok := f.StepByID(s.LoopPartner); ok {
				steps = append(steps, partner)
			}
		}
	case until != "":
		idx := f.IndexOf(until)
		if idx < 0 {
			return reg, newExitError(2, "flow %q has no step %q", flowKey, until)
		}
		steps = append([]config.Step(nil), f.Steps[:idx+1]...)
	}

	f.Steps = steps
	flows := make(map[config.FlowKey]config.Flow, len(reg.Flows))
	for k, v := range reg.Flows {
		flows[k] = v
	}
	flows[flowKey] = f
	reg.Flows = flows
	return reg, nil
}

func printPlan(cmd *cobra.Command, f config.Flow) error {
	for _, s := range f.Steps {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", s.StepID, s.AgentKey, s.Role)
	}
	return nil
}

func emitResult(cmd *cobra.Command, res flow.Result) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	asJSONV2, _ := cmd.Flags().GetBool("json-v2")
	reportPath, _ := cmd.Flags().GetString("report")

	var raw []byte
	var err error
	if asJSON || asJSONV2 || reportPath != "" {
		raw, err = json.MarshalIndent(res, "", "  ")
		if err != nil {
			return newExitError(1, "marshal flow result: %v", err)
		}
	}

	if asJSON || asJSONV2 {
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	} else {
		printHuman(cmd, res)
	}

	if reportPath != "" {
		if err := os.WriteFile(reportPath, raw, 0o644); err != nil {
			return newExitError(1, "write report %q: %v", reportPath, err)
		}
	}
	return nil
}

func printHuman(cmd *cobra.Command, res flow.Result) {
	for _, s := range res.Steps {
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-8s %s\n", s.StepID, s.Status, s.Decision)
	}
	if res.Terminated {
		fmt.Fprintln(cmd.OutOrStdout(), "flow terminated")
	}
	if res.Escalated {
		fmt.Fprintln(cmd.OutOrStdout(), "flow escalated")
	}
}

// exitFromResult maps a flow Result to spec §6's exit code convention: 0
// clean completion, 1 any step FAILed or the flow escalated.
func exitFromResult(res flow.Result) error {
	if res.Escalated {
		return newExitError(1, "flow %s escalated", res.FlowKey)
	}
	for _, s := range res.Steps {
		if s.Status == schema.StatusFail {
			return newExitError(1, "flow %s: step %s failed", res.FlowKey, s.StepID)
		}
	}
	return nil
}
