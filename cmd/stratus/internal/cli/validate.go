package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/stratus-lite/cmd/stratus/internal/ui"
	"github.com/example/stratus-lite/internal/graph"
	"github.com/example/stratus-lite/internal/opset"
	"github.com/example/stratus-lite/internal/request"
)

var validateCmd = &cobra.Command{
	Use:   "validate <request-file>",
	Short: "Check a request and show how it would be distributed",
	Long: `Parse a request file and check that its op names are well formed,
its ids and results are unique, and its inferred graph is acyclic with a
single output.

When backends are configured, also print the distribution plan: which
backend would run which ops, in the order units are claimed.

EXAMPLES:
  stratus validate fanin.yaml
  stratus validate fanin.yaml --backend a=host1:50062 --backend b=host2:50062`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	req, err := request.Load(args[0])
	if err != nil {
		return err
	}
	set, err := opset.FromRequest(req, graph.WithMultipleOutputs(cfg.MultipleOutputs))
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("%s: %d ops, graph is valid", req.ID, set.Len()))
	if len(cfg.Backends) == 0 {
		return nil
	}

	env, err := openEnvironment(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer env.Close()

	capable := opset.CapableBackends(env.registry, set)
	for _, op := range set.Ops() {
		if len(capable[op.ID()]) == 0 {
			ui.PrintWarning(fmt.Sprintf("no backend can run %s (%s)", op.ID(), op.QualifiedName()))
		}
	}

	sets, err := opset.Compile(env.registry, req, graph.WithMultipleOutputs(cfg.MultipleOutputs))
	if err != nil {
		return err
	}
	ui.PrintHeader("Plan")
	for i, s := range sets {
		ui.PrintUnit(i+1, s.ClientID(), s.Request().Ops)
	}
	return nil
}
