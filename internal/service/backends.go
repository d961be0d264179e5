package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/config"
	"github.com/example/stratus-lite/internal/domain"
	grpctransport "github.com/example/stratus-lite/internal/transport/grpc"
)

// Backends dials remote backends and keeps them registered in a registry.
type Backends struct {
	registry *backend.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*grpctransport.Client
}

// NewBackends creates a Backends manager over reg.
func NewBackends(reg *backend.Registry, logger *slog.Logger) *Backends {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backends{
		registry: reg,
		logger:   logger.With("component", "backends"),
		clients:  make(map[string]*grpctransport.Client),
	}
}

// Connect dials one backend and registers it. The backend must answer its
// capabilities query.
func (b *Backends) Connect(ctx context.Context, cfg config.Backend) error {
	if cfg.ID == "" || cfg.Address == "" {
		return fmt.Errorf("%w: backend %q needs an id and an address", domain.ErrInvalidArgument, cfg.ID)
	}
	c, err := grpctransport.Dial(cfg.ID, cfg.Address,
		grpctransport.WithStatusRate(cfg.Rate),
		grpctransport.WithClientLogger(b.logger),
	)
	if err != nil {
		return err
	}
	if err := b.registry.Register(ctx, c); err != nil {
		_ = c.Close()
		return err
	}

	b.mu.Lock()
	b.clients[cfg.ID] = c
	b.mu.Unlock()
	b.logger.InfoContext(ctx, "backend registered", "backend", cfg.ID, "addr", cfg.Address, "patterns", b.registry.Patterns(cfg.ID))
	return nil
}

// ConnectAll connects every configured backend, stopping at the first
// failure.
func (b *Backends) ConnectAll(ctx context.Context, cfgs []config.Backend) error {
	for _, cfg := range cfgs {
		if err := b.Connect(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect unregisters a backend and closes its connection.
func (b *Backends) Disconnect(id string) error {
	b.mu.Lock()
	c, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()

	b.registry.Unregister(id)
	if !ok {
		return nil
	}
	return c.Close()
}

// Close disconnects every backend.
func (b *Backends) Close() error {
	b.mu.Lock()
	ids := make([]string, 0, len(b.clients))
	for id := range b.clients {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := b.Disconnect(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
