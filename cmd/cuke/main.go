// Command cuke runs Gherkin feature files against shell step definitions.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/cuke/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, cli.ErrScenariosFailed) {
			fmt.Fprintln(os.Stderr, "cuke:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
