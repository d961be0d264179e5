package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/stratus-lite/cmd/stratus/internal/ui"
	"github.com/example/stratus-lite/internal/observability"
	"github.com/example/stratus-lite/internal/service"
	grpctransport "github.com/example/stratus-lite/internal/transport/grpc"
	"github.com/example/stratus-lite/internal/web"
)

var (
	gatewayID     string
	traceExporter string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller with the status API, metrics and gRPC gateway",
	Long: `Connect the configured backends and run workflows until interrupted.

Two listeners are started:
  http_listen  JSON API (submit, list, inspect, cancel), /metrics, /healthz
  listen       the Backend gRPC service, so this instance can itself be
               registered as a backend of another (empty disables it)

Every workflow and task transition is journaled to the configured database.
Task spans go to the trace_exporter (none, stdout or otlp at otlp_endpoint).

EXAMPLES:
  stratus serve --config stratus.yaml
  STRATUS_HTTP_LISTEN=:9090 stratus serve --backend math=localhost:50062
  stratus serve --trace-exporter stdout`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&gatewayID, "gateway-id", "stratus", "backend id advertised on the gRPC listener")
	serveCmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "span exporter: none, stdout or otlp (overrides trace_exporter)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	if traceExporter != "" {
		cfg.TraceExporter = traceExporter
	}
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    true,
		ServiceName: gatewayID,
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush", "error", err)
		}
	}()

	env, err := openEnvironment(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()

	metrics := observability.NewMetrics()
	orch := env.orchestrator(service.WithMetrics(metrics))
	orch.Start()
	defer orch.Stop()

	errCh := make(chan error, 2)
	webServer := web.NewServer(cfg.HTTPListen, orch, metrics)
	go func() {
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("web server: %w", err)
		}
	}()

	var gateway *grpctransport.Server
	if cfg.Listen != "" {
		gateway = grpctransport.NewServer(service.NewGateway(gatewayID, orch), grpctransport.WithLogger(logger))
		go func() {
			if err := gateway.ListenAndServe(cfg.Listen); err != nil {
				errCh <- fmt.Errorf("grpc gateway: %w", err)
			}
		}()
	}

	ui.PrintSuccess(fmt.Sprintf("Serving with %d backends (api %s, grpc %s)", len(env.registry.Clients()), cfg.HTTPListen, cfg.Listen))

	select {
	case <-ctx.Done():
		ui.PrintWarning("Shutting down...")
	case err = <-errCh:
		logger.Error("listener failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if serr := webServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("web shutdown", "error", serr)
	}
	if gateway != nil {
		gateway.GracefulStop()
	}
	return err
}
