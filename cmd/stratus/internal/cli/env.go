package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/service"
	"github.com/example/stratus-lite/internal/storage"
	"github.com/example/stratus-lite/internal/storage/sqlite"
)

// environment holds the connected backends and, when journaling, the
// open database.
type environment struct {
	registry *backend.Registry
	backends *service.Backends
	store    *sqlite.SQLiteStorage
}

func openEnvironment(ctx context.Context, journal bool) (*environment, error) {
	logger := slog.Default()
	reg := backend.NewRegistry(logger)
	env := &environment{registry: reg, backends: service.NewBackends(reg, logger)}

	if err := env.backends.ConnectAll(ctx, cfg.Backends); err != nil {
		_ = env.Close()
		return nil, err
	}

	if journal {
		store, err := sqlite.New(cfg.Database)
		if err != nil {
			_ = env.Close()
			return nil, fmt.Errorf("open journal %s: %w", cfg.Database, err)
		}
		env.store = store
		if err := store.Migrate(ctx); err != nil {
			_ = env.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
	}
	return env, nil
}

func (e *environment) storage() storage.Storage {
	if e.store == nil {
		return nil
	}
	return e.store
}

func (e *environment) orchestrator(opts ...service.Option) *service.Orchestrator {
	sc := service.Config{
		MaxWorkers:      cfg.MaxWorkers,
		MultipleOutputs: cfg.MultipleOutputs,
		Strategy:        cfg.Strategy,
		PollInterval:    cfg.PollInterval,
		Retention:       cfg.Retention,
	}
	opts = append(opts, service.WithLogger(slog.Default()))
	return service.NewOrchestrator(e.registry, e.storage(), sc, opts...)
}

func (e *environment) Close() error {
	err := e.backends.Close()
	if e.store != nil {
		err = errors.Join(err, e.store.Close())
	}
	return err
}
