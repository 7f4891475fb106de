// Command qml compiles, runs and calibrates quantitative economic models.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/qml/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Structured output has already gone to stdout; stderr gets the
		// one-line reason for the exit code.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
