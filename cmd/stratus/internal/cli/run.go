package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/stratus-lite/cmd/stratus/internal/ui"
	"github.com/example/stratus-lite/internal/request"
	"github.com/example/stratus-lite/internal/workflow"
)

var (
	runTimeout time.Duration
	runJournal bool
)

var runCmd = &cobra.Command{
	Use:   "run <request-file>",
	Short: "Run a request and print its result",
	Long: `Compile a request file into a workflow, run it on the registered
backends and print the output values as JSON on stdout.

Request files may be YAML (.yaml, .yml), JSON (.json) or HCL (.hcl).

Ctrl+C or an expired --timeout cancels the workflow; tasks already running
on a backend are asked to cancel.

EXAMPLES:
  stratus run fanin.yaml --backend math=localhost:50062
  stratus run fanin.hcl --backend math=localhost:50062 --strategy composed
  stratus run long.yaml --backend math=localhost:50062 --timeout 30s --journal`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "cancel the workflow after this long (0 = no limit)")
	runCmd.Flags().BoolVar(&runJournal, "journal", false, "record the workflow in the configured database")
}

func runRun(cmd *cobra.Command, args []string) error {
	req, err := request.Load(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	env, err := openEnvironment(ctx, runJournal)
	if err != nil {
		return err
	}
	defer env.Close()

	orch := env.orchestrator()
	orch.Start()
	defer orch.Stop()

	ui.PrintStep(fmt.Sprintf("Running %s (%d ops, %s strategy)", req.ID, len(req.Ops), cfg.Strategy))
	w, err := orch.Submit(ctx, req)
	if err != nil {
		return err
	}

	res, err := orch.Wait(ctx, w.ID())
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		ui.PrintWarning("Interrupted, canceling workflow " + w.ID())
		_ = orch.Cancel(w.ID())
		return err
	}
	printTasks(w)
	if err != nil {
		return fmt.Errorf("workflow %s: %w", w.ID(), err)
	}
	ui.PrintSuccess("Workflow " + w.ID() + " completed")

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res.Data)
}

func printTasks(w *workflow.Workflow) {
	for _, t := range w.Tasks() {
		ui.PrintStatus(t.ClientOpSet().ClientID()+" "+t.ID(), t.Status())
	}
	ui.PrintStatus("workflow", w.Status())
}
