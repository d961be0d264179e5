package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned when an argument is invalid.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyExists is returned when trying to create a duplicate entity.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotReady is returned by non-blocking (or timed out) result retrieval.
	ErrNotReady = errors.New("result not ready")

	// ErrCapability is returned when no backend can run a requested op.
	ErrCapability = errors.New("no backend capable of running operation")

	// ErrConfiguration is returned when a graph cannot form a valid workflow.
	ErrConfiguration = errors.New("workflow configuration error")

	// ErrCyclicDependency is returned when a dependency cycle is detected.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrDependencyIncomplete is returned when a task reads a dependency
	// that never produced a result.
	ErrDependencyIncomplete = errors.New("dependency result incomplete")

	// ErrBackendExecution wraps failures reported by a backend handle.
	ErrBackendExecution = errors.New("backend execution failed")

	// ErrCanceled is returned by handles that were canceled.
	ErrCanceled = errors.New("canceled")
)

// CapabilityError names the op that no registered backend advertises.
type CapabilityError struct {
	OpID string
	Name string
	Epas []string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%v: op %q (%s) requires address pattern [%s]",
		ErrCapability, e.Name, e.OpID, strings.Join(e.Epas, ", "))
}

func (e *CapabilityError) Unwrap() error { return ErrCapability }

// CycleError reports a dependency cycle found while connecting a graph.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %v: %s", ErrConfiguration, ErrCyclicDependency, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() []error {
	return []error{ErrConfiguration, ErrCyclicDependency}
}
