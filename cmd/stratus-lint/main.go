// Command stratus-lint reports mistakes in OpDescriptor literals.
//
// Usage:
//
//	stratus-lint ./...
//
// See pkg/lint for the list of checks.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/example/stratus-lite/pkg/lint"
)

func main() {
	singlechecker.Main(lint.Analyzer)
}
