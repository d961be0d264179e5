// Command stratus compiles requests into workflows and runs them on
// registered backends.
package main

import (
	"os"

	"github.com/example/stratus-lite/cmd/stratus/internal/cli"
	"github.com/example/stratus-lite/cmd/stratus/internal/ui"
)

func main() {
	if err := cli.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
