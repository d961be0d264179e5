// Command backend-example serves a small arithmetic backend over gRPC.
//
// Register it with a Stratus instance as, for example,
//
//	stratus run request.yaml --backend math=localhost:50062
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/ctxlog"
	grpctransport "github.com/example/stratus-lite/internal/transport/grpc"
)

var (
	backendID     = flag.String("id", "math", "Backend ID")
	epas          = flag.String("epas", "math", "Comma-separated address patterns served")
	listenAddr    = flag.String("listen", ":50062", "Address to listen on")
	maxConcurrent = flag.Int64("max-concurrent", 4, "Maximum concurrent sub-requests")
	logLevel      = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ctxlog.ParseLevel(*logLevel)}))
	slog.SetDefault(logger)

	client := newMathBackend(*backendID, strings.Split(*epas, ","),
		backend.WithConcurrency(*maxConcurrent),
		backend.WithLocalLogger(logger),
	)
	server := grpctransport.NewServer(client, grpctransport.WithLogger(logger))

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down", "pending", server.Pending())
		server.GracefulStop()
	}()

	if err := server.ListenAndServe(*listenAddr); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
