// Package grpc exposes a backend.Client over gRPC and provides the
// matching remote client.
package grpc

import (
	"context"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/example/stratus-lite/internal/backend"
)

// Server serves a backend.Client under ServiceName and keeps the handles
// it returned until their result is collected.
type Server struct {
	backend    backend.Client
	logger     *slog.Logger
	grpcServer *grpc.Server

	mu      sync.Mutex
	handles map[string]backend.Handle
}

var _ backendServer = (*Server)(nil)

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new gRPC server for the given backend.
func NewServer(b backend.Client, opts ...ServerOption) *Server {
	s := &Server{
		backend: b,
		logger:  slog.Default(),
		handles: make(map[string]backend.Handle),
	}

	// Apply options
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "grpc", "backend", b.ID())

	// Create gRPC server with interceptors
	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(s.logger),
			RecoveryInterceptor(s.logger),
		),
	)
	s.grpcServer.RegisterService(&serviceDesc, s)

	// Enable reflection for grpcurl and other tools
	reflection.Register(s.grpcServer)

	return s
}

// Serve accepts connections on lis until the server stops.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// GracefulStop gracefully stops the server and cancels handles that were
// never collected.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.handles {
		backend.Cancel(h)
		delete(s.handles, id)
	}
}

// Pending returns the number of handles not yet collected.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// LoggingInterceptor returns a gRPC interceptor that logs requests and their duration.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.WarnContext(ctx, "gRPC call failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		} else {
			logger.DebugContext(ctx, "gRPC call", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}

// RecoveryInterceptor returns a gRPC interceptor that recovers from panics.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "gRPC panic recovered", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
