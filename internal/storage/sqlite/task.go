package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/storage"
)

type taskRepo struct {
	tx *sql.Tx
}

func (r *taskRepo) CreateBatch(ctx context.Context, tasks []*domain.TaskRecord) error {
	stmt, err := r.tx.PrepareContext(ctx, `
		INSERT INTO tasks (
			id, workflow_id, seq, backend_id, op_ids_json, inputs_json, outputs_json,
			status, error_message, created_at, updated_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range tasks {
		opIDs, err := json.Marshal(nonNil(t.OpIDs))
		if err != nil {
			return err
		}
		inputs, err := json.Marshal(nonNil(t.Inputs))
		if err != nil {
			return err
		}
		outputs, err := json.Marshal(nonNil(t.Outputs))
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, t.ID, t.WorkflowID, i, t.BackendID, string(opIDs), string(inputs), string(outputs),
			string(t.Status), t.Error, t.CreatedAt, t.UpdatedAt, t.StartedAt, t.CompletedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *taskRepo) ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.TaskRecord, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, workflow_id, backend_id, op_ids_json, inputs_json, outputs_json,
			status, error_message, created_at, updated_at, started_at, completed_at
		FROM tasks WHERE workflow_id = ? ORDER BY seq
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *taskRepo) UpdateStatus(ctx context.Context, workflowID, taskID string, update storage.StatusUpdate) error {
	var startedAt, completedAt any
	if update.Status == domain.StatusExecuting {
		startedAt = update.At
	}
	if update.Status.IsFinal() {
		completedAt = update.At
	}
	res, err := r.tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, error_message = COALESCE(NULLIF(?, ''), error_message), updated_at = ?,
			started_at = COALESCE(started_at, ?), completed_at = COALESCE(?, completed_at)
		WHERE workflow_id = ? AND id = ?
	`, string(update.Status), update.Error, update.At, startedAt, completedAt, workflowID, taskID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanTask(s scanner) (*domain.TaskRecord, error) {
	t := &domain.TaskRecord{}
	var status, opIDs, inputs, outputs string
	var errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime

	err := s.Scan(&t.ID, &t.WorkflowID, &t.BackendID, &opIDs, &inputs, &outputs,
		&status, &errorMessage, &t.CreatedAt, &t.UpdatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Status = domain.ParseStatus(status)
	t.Error = errorMessage.String
	if err := json.Unmarshal([]byte(opIDs), &t.OpIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inputs), &t.Inputs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(outputs), &t.Outputs); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
