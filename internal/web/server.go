// Package web serves the workflow status API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/stratus-lite/internal/service"
)

// Server is the web HTTP server
type Server struct {
	addr     string
	handlers *Handlers
	mux      *http.ServeMux
	http     *http.Server
	logger   *slog.Logger
}

// NewServer creates a new web server. metrics, when non-nil, is mounted
// at /metrics.
func NewServer(addr string, orchestrator *service.Orchestrator, metrics http.Handler) *Server {
	s := &Server{
		addr:     addr,
		handlers: NewHandlers(orchestrator),
		mux:      http.NewServeMux(),
		logger:   slog.Default().With("component", "web"),
	}
	s.setupRoutes(metrics)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.mux.HandleFunc("GET /api/workflows", s.corsMiddleware(s.handlers.ListWorkflows))
	s.mux.HandleFunc("POST /api/workflows", s.corsMiddleware(s.handlers.SubmitWorkflow))
	s.mux.HandleFunc("GET /api/workflows/{id}", s.corsMiddleware(s.handlers.GetWorkflow))
	s.mux.HandleFunc("GET /api/workflows/{id}/timeline", s.corsMiddleware(s.handlers.GetTimeline))
	s.mux.HandleFunc("POST /api/workflows/{id}/cancel", s.corsMiddleware(s.handlers.CancelWorkflow))
	s.mux.HandleFunc("GET /api/backends", s.corsMiddleware(s.handlers.ListBackends))
	s.mux.HandleFunc("OPTIONS /api/", s.corsMiddleware(func(http.ResponseWriter, *http.Request) {}))
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting web server", "addr", s.addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.mux
}
