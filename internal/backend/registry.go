package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gobwas/glob"

	"github.com/example/stratus-lite/internal/domain"
)

// Registry holds the backends available to a compiler and caches their
// advertised address patterns.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	logger  *slog.Logger
}

type registryEntry struct {
	client   Client
	patterns []string
	globs    []glob.Glob
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		logger:  logger.With("component", "registry"),
	}
}

// Register queries the client's epas capability once and adds it.
func (r *Registry) Register(ctx context.Context, c Client) error {
	caps, err := c.Capabilities(ctx, CapabilityEpas)
	if err != nil {
		return fmt.Errorf("query capabilities of %s: %w", c.ID(), err)
	}
	patterns := caps[CapabilityEpas]
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return fmt.Errorf("%w: backend %s advertises bad pattern %q: %v", domain.ErrInvalidArgument, c.ID(), p, err)
		}
		globs = append(globs, g)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[c.ID()]; exists {
		return fmt.Errorf("%w: backend %s", domain.ErrAlreadyExists, c.ID())
	}
	r.entries[c.ID()] = &registryEntry{
		client:   c,
		patterns: append([]string(nil), patterns...),
		globs:    globs,
	}
	r.logger.Info("registered backend", "backend", c.ID(), "epas", patterns)
	return nil
}

// Unregister removes a backend. It returns false if it was not registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Client returns the backend with the given ID.
func (r *Registry) Client(id string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Clients returns every registered backend ordered by ID.
func (r *Registry) Clients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.client)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Patterns returns the cached address patterns of a backend.
func (r *Registry) Patterns(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return append([]string(nil), e.patterns...)
	}
	return nil
}

// Handlers returns the backends, ordered by ID, with a pattern matching
// either the op's full dotted address or one of its epas.
func (r *Registry) Handlers(address string, epas []string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Client
	for _, e := range r.entries {
		if e.matches(address, epas) {
			out = append(out, e.client)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (e *registryEntry) matches(address string, epas []string) bool {
	for _, g := range e.globs {
		if g.Match(address) {
			return true
		}
		for _, epa := range epas {
			if g.Match(epa) {
				return true
			}
		}
	}
	return false
}
