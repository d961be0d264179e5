package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/observability"
	"github.com/example/stratus-lite/internal/storage"
	"github.com/example/stratus-lite/internal/workflow"
)

const journalTimeout = 5 * time.Second

// journal is a workflow.Observer that records status transitions in
// storage and feeds the metrics. Either may be nil.
type journal struct {
	store   storage.Storage
	metrics *observability.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	startedAt map[string]time.Time
}

var _ workflow.Observer = (*journal)(nil)

func newJournal(store storage.Storage, metrics *observability.Metrics, logger *slog.Logger) *journal {
	return &journal{
		store:     store,
		metrics:   metrics,
		logger:    logger.With("component", "journal"),
		startedAt: make(map[string]time.Time),
	}
}

func (j *journal) started(w *workflow.Workflow) {
	if w.Status().IsFinal() {
		return
	}
	j.mu.Lock()
	j.startedAt[w.ID()] = time.Now()
	j.mu.Unlock()
}

// elapsed returns the time since key was started, forgetting it when
// forget is set.
func (j *journal) elapsed(key string, forget bool) (time.Duration, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	at, ok := j.startedAt[key]
	if forget {
		delete(j.startedAt, key)
	}
	if !ok {
		return 0, false
	}
	return time.Since(at), true
}

func (j *journal) WorkflowStatusChanged(w *workflow.Workflow, from, to domain.Status) {
	j.logger.Debug("workflow status changed", "workflow", w.ID(), "from", from, "to", to)

	update := storage.StatusUpdate{Status: to, At: time.Now().UTC()}
	if to.IsFailure() {
		if err := w.Exception(); err != nil {
			update.Error = err.Error()
		}
	}
	j.write(func(ctx context.Context, uow storage.UnitOfWork) error {
		return uow.Workflows().UpdateStatus(ctx, w.ID(), update)
	})

	if to.IsFinal() && j.metrics != nil {
		d, _ := j.elapsed(w.ID(), true)
		j.metrics.WorkflowFinished(to.String(), d)
	}
}

func (j *journal) TaskStatusChanged(w *workflow.Workflow, t *workflow.Task, from, to domain.Status) {
	backendID := t.ClientOpSet().ClientID()
	j.logger.Debug("task status changed", "workflow", w.ID(), "task", t.ID(), "backend", backendID, "from", from, "to", to)

	update := storage.StatusUpdate{Status: to, At: time.Now().UTC()}
	if to.IsFailure() {
		if err := t.Exception(); err != nil {
			update.Error = err.Error()
		}
	}
	j.write(func(ctx context.Context, uow storage.UnitOfWork) error {
		return uow.Tasks().UpdateStatus(ctx, w.ID(), t.ID(), update)
	})

	if j.metrics == nil {
		return
	}
	key := w.ID() + "/" + t.ID()
	switch {
	case to == domain.StatusExecuting:
		j.metrics.TaskSubmitted(backendID)
		j.mu.Lock()
		j.startedAt[key] = time.Now()
		j.mu.Unlock()
	case to.IsFinal():
		// Tasks that settled between two passes were never seen executing.
		if from == domain.StatusIdle && to != domain.StatusCanceled {
			j.metrics.TaskSubmitted(backendID)
		}
		d, _ := j.elapsed(key, true)
		j.metrics.TaskFinished(backendID, to.String(), d)
	}
}

func (j *journal) write(fn func(context.Context, storage.UnitOfWork) error) {
	if j.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	err := storage.InTx(ctx, j.store, func(uow storage.UnitOfWork) error {
		return fn(ctx, uow)
	})
	if err != nil {
		j.logger.Error("journal write failed", "error", err)
		if j.metrics != nil {
			j.metrics.JournalError()
		}
	}
}
