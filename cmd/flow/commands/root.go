// Package commands implements the `flow` CLI's command tree, grounded on
// the teacher's cobra root-command-plus-factory-functions shape
// (ai.agent/cmd/cortex/main.go, internal/cli/commands/gov.go).
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// exitError carries an explicit CLI exit code, matching spec §6's
// convention (0 success/non-blocking, 1 blocking failure, 2 usage/config
// error). main() looks for this interface before falling back to 1.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func newExitError(code int, format string, args ...any) error {
	return &exitError{code: code, msg: fmt.Sprintf(format, args...)}
}

// NewRootCommand constructs the `flow` root command and wires every
// subcommand (spec §6: `flow <cmd> <run_id> [options]`).
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "flow",
		Short:         "Drive the six-flow orchestrated SDLC harness for one run",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("run-base", "", "override RUN_BASE (defaults to $RUN_BASE or ./runs)")
	root.PersistentFlags().Bool("json", false, "emit the flow result as JSON")
	root.PersistentFlags().Bool("json-v2", false, "emit the result as JSON (same output as --json)")
	root.PersistentFlags().String("report", "", "write the result/report to this path in addition to stdout")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose (DEBUG level) logging")

	for _, key := range flowKeys {
		root.AddCommand(newFlowCommand(key))
	}
	root.AddCommand(newSelftestCommand())

	return root
}
