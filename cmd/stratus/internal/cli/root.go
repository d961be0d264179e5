package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/stratus-lite/cmd/stratus/internal/ui"
	"github.com/example/stratus-lite/internal/config"
	"github.com/example/stratus-lite/internal/ctxlog"
)

var (
	configPath   string
	logLevel     string
	strategyName string
	backendFlags []string

	// cfg is loaded before any subcommand runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stratus",
	Short: "Compile requests into dependency-ordered workflows and run them on backends",
	Long: `stratus turns a flat list of ops into a workflow.

Dependencies between ops are inferred by matching each op's inputs to the
results of other ops. Ops are grouped onto as few backends as possible,
largest group first, and the resulting tasks are driven to completion in
dependency order.

Backends are gRPC services registered by id and address, either in the
config file or with --backend.

EXAMPLES:
  # Run a request against one backend and print its result
  stratus run request.yaml --backend math=localhost:50062

  # Show how a request would be distributed
  stratus validate request.hcl --backend a=host1:50062 --backend b=host2:50062

  # List what each configured backend can run
  stratus capabilities --config stratus.yaml

  # Run the controller with the web API and metrics
  stratus serve --config stratus.yaml`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&strategyName, "strategy", "", "execution strategy (pool, composed)")
	flags.StringArrayVar(&backendFlags, "backend", nil, "backend as id=host:port (repeatable)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(capabilitiesCmd)
	rootCmd.AddCommand(serveCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if strategyName != "" {
		loaded.Strategy = strategyName
	}
	for _, s := range backendFlags {
		b, err := config.ParseBackend(s)
		if err != nil {
			return err
		}
		loaded.Backends = append(loaded.Backends, b)
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	cfg = loaded

	ui.Out = cmd.ErrOrStderr()
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: ctxlog.ParseLevel(cfg.LogLevel)})
	slog.SetDefault(slog.New(handler))
	return nil
}
