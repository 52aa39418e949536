package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stepflow-dev/harness/internal/config"
	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stepflow-dev/harness/internal/selftest"
)

// newSelftestCommand builds `flow selftest <run_id> [--degraded|--kernel-only]`
// (spec §4.7, §6).
func newSelftestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest <run_id>",
		Short: "Run the governance selftest catalog against the working tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := requireRunID(args)
			if err != nil {
				return err
			}

			degraded, _ := cmd.Flags().GetBool("degraded")
			kernelOnly, _ := cmd.Flags().GetBool("kernel-only")
			mode := selftest.ModeStrict
			switch {
			case kernelOnly:
				mode = selftest.ModeKernelOnly
			case degraded:
				mode = selftest.ModeDegraded
			}

			env := config.FromEnviron()
			if env.SelftestForceDegraded && mode == selftest.ModeStrict {
				mode = selftest.ModeDegraded
			}

			runBase := resolveRunBase(cmd, env)
			log := buildLogger(cmd)
			store := runstore.New(runBase, runID, config.DefaultProfile.ArtifactCapBytes, log)

			runner := selftest.NewRunner(selftest.DefaultCatalog, store, nil)
			results, report, err := runner.Run(cmd.Context(), runID, mode, nil, env.SelftestSkipSteps, selftest.ReportMetadata{RunID: runID})
			if err != nil {
				return newExitError(kindExitCode(err), "selftest: %v", err)
			}

			if err := emitSelftestReport(cmd, report); err != nil {
				return err
			}

			code := selftest.ExitCode(results)
			if code != 0 {
				return newExitError(code, "selftest: one or more blocking checks failed")
			}
			return nil
		},
	}

	cmd.Flags().Bool("degraded", false, "run in degraded mode: only KERNEL failures block")
	cmd.Flags().Bool("kernel-only", false, "run only KERNEL-tier checks")
	return cmd
}

func emitSelftestReport(cmd *cobra.Command, report selftest.Report) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	asJSONV2, _ := cmd.Flags().GetBool("json-v2")
	reportPath, _ := cmd.Flags().GetString("report")

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return newExitError(1, "marshal selftest report: %v", err)
	}

	if asJSON || asJSONV2 {
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "passed=%d failed=%d skipped=%d total=%d\n",
			report.Summary.Passed, report.Summary.Failed, report.Summary.Skipped, report.Summary.Total)
	}

	if reportPath != "" {
		if err := os.WriteFile(reportPath, raw, 0o644); err != nil {
			return newExitError(1, "write report %q: %v", reportPath, err)
		}
	}
	return nil
}
