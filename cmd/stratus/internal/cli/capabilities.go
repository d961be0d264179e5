package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/stratus-lite/cmd/stratus/internal/ui"
	"github.com/example/stratus-lite/internal/backend"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the address patterns and ops of each backend",
	Long: `Connect to every configured backend and print the address patterns
it serves and, if it reports them, the ops it implements.

EXAMPLES:
  stratus capabilities --backend math=localhost:50062`,
	Args: cobra.NoArgs,
	RunE: runCapabilities,
}

func runCapabilities(cmd *cobra.Command, _ []string) error {
	if len(cfg.Backends) == 0 {
		return fmt.Errorf("no backends configured; use --backend or a config file")
	}
	ctx := cmd.Context()
	env, err := openEnvironment(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()

	out := cmd.OutOrStdout()
	for _, c := range env.registry.Clients() {
		fmt.Fprintf(out, "%s\n", c.ID())
		fmt.Fprintf(out, "  epas: %s\n", strings.Join(env.registry.Patterns(c.ID()), ", "))
		caps, err := c.Capabilities(ctx, backend.CapabilityOps)
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("%s: %v", c.ID(), err))
			continue
		}
		if ops := caps[backend.CapabilityOps]; len(ops) > 0 {
			fmt.Fprintf(out, "  ops:  %s\n", strings.Join(ops, ", "))
		}
	}
	return nil
}
