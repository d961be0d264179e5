// Package backend defines the contract between the workflow core and the
// services that actually execute operations.
package backend

import (
	"context"
	"time"

	"github.com/example/stratus-lite/internal/domain"
)

// Capability kinds.
const (
	// CapabilityEpas lists a backend's address patterns.
	CapabilityEpas = "epas"
	// CapabilityOps lists the op names a backend implements, when it knows them.
	CapabilityOps = "ops"
)

// Client is a backend service able to run some subset of requested ops.
type Client interface {
	ID() string

	// Capabilities returns the advertised capabilities of the given kind,
	// e.g. {"epas": ["xop", "math.*"]}.
	Capabilities(ctx context.Context, kind string) (map[string][]string, error)

	// Request submits a backend-scoped sub-request. deps carries the
	// results of every upstream task. It returns without waiting for the
	// work to finish.
	Request(ctx context.Context, req *domain.Request, deps []*domain.TaskResult) (Handle, error)
}

// Handle tracks one asynchronous execution.
type Handle interface {
	ID() string
	Status() domain.Status
	Exception() error

	// Result returns the result once the handle is final. A non-blocking
	// call on a pending handle, or a blocking call that exceeds timeout,
	// returns domain.ErrNotReady. A zero timeout waits until ctx is done.
	Result(ctx context.Context, block bool, timeout time.Duration) (*domain.TaskResult, error)
}

// Canceler is implemented by handles that support best-effort cancellation.
type Canceler interface {
	Cancel()
}

// Cancel cancels h if it supports cancellation.
func Cancel(h Handle) {
	if c, ok := h.(Canceler); ok {
		c.Cancel()
	}
}
