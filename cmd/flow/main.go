// Command flow drives one flow (signal/plan/build/gate/deploy/wisdom) or
// the governance selftest catalog against an existing run.
package main

import (
	"fmt"
	"os"

	"github.com/stepflow-dev/harness/cmd/flow/commands"
)

func main() {
	root := commands.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := 1
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			code = coder.ExitCode()
		}
		os.Exit(code)
	}
}
