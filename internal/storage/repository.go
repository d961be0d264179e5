package storage

import (
	"context"
	"time"

	"github.com/example/stratus-lite/internal/domain"
)

// ListOptions provides filtering options for list operations.
type ListOptions struct {
	// Statuses to filter by (empty = all)
	Statuses []domain.Status

	// Pagination
	Limit  int
	Offset int
}

// StatusUpdate describes a status transition to record.
type StatusUpdate struct {
	Status domain.Status
	Error  string
	At     time.Time
}

// WorkflowRepository provides access to workflow records.
type WorkflowRepository interface {
	// Create creates a new workflow record.
	Create(ctx context.Context, wf *domain.WorkflowRecord) error

	// Get retrieves a workflow record by ID.
	Get(ctx context.Context, id string) (*domain.WorkflowRecord, error)

	// List lists workflow records, newest first.
	List(ctx context.Context, opts ListOptions) ([]*domain.WorkflowRecord, error)

	// UpdateStatus records a status transition. Final statuses also set
	// the completion time.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
}

// TaskRepository provides access to task records.
type TaskRepository interface {
	// CreateBatch creates the task records of one workflow.
	CreateBatch(ctx context.Context, tasks []*domain.TaskRecord) error

	// ListByWorkflow lists the tasks of a workflow in creation order.
	ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.TaskRecord, error)

	// UpdateStatus records a task status transition.
	UpdateStatus(ctx context.Context, workflowID, taskID string, update StatusUpdate) error
}

// UnitOfWork provides transactional access to all repositories.
type UnitOfWork interface {
	// Repository accessors
	Workflows() WorkflowRepository
	Tasks() TaskRepository

	// Transaction control
	Commit() error
	Rollback() error
}

// Storage provides the main entry point for storage operations.
type Storage interface {
	// Begin starts a new transaction and returns a UnitOfWork.
	Begin(ctx context.Context) (UnitOfWork, error)

	// Close closes the storage connection.
	Close() error

	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
}

// InTx runs fn inside one unit of work and commits it when fn succeeds.
func InTx(ctx context.Context, s Storage, fn func(UnitOfWork) error) error {
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	if err := fn(uow); err != nil {
		return err
	}
	return uow.Commit()
}
