package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/storage"
)

type workflowRepo struct {
	tx *sql.Tx
}

const workflowColumns = `id, request_id, client_id, status, strategy, output_task_id,
	error_message, created_at, updated_at, completed_at`

func (r *workflowRepo) Create(ctx context.Context, wf *domain.WorkflowRecord) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, wf.ID, wf.RequestID, wf.ClientID, string(wf.Status), wf.Strategy, wf.OutputTaskID,
		wf.Error, wf.CreatedAt, wf.UpdatedAt, wf.CompletedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: workflow %s", domain.ErrAlreadyExists, wf.ID)
	}
	return err
}

func (r *workflowRepo) Get(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	row := r.tx.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return wf, err
}

func (r *workflowRepo) List(ctx context.Context, opts storage.ListOptions) ([]*domain.WorkflowRecord, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows`
	var args []any
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, s := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, id`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.WorkflowRecord
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (r *workflowRepo) UpdateStatus(ctx context.Context, id string, update storage.StatusUpdate) error {
	var completedAt any
	if update.Status.IsFinal() {
		completedAt = update.At
	}
	res, err := r.tx.ExecContext(ctx, `
		UPDATE workflows
		SET status = ?, error_message = COALESCE(NULLIF(?, ''), error_message),
			updated_at = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ?
	`, string(update.Status), update.Error, update.At, completedAt, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(s scanner) (*domain.WorkflowRecord, error) {
	wf := &domain.WorkflowRecord{}
	var status string
	var requestID, clientID, strategy, outputTaskID, errorMessage sql.NullString
	var completedAt sql.NullTime

	err := s.Scan(&wf.ID, &requestID, &clientID, &status, &strategy, &outputTaskID,
		&errorMessage, &wf.CreatedAt, &wf.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	wf.Status = domain.ParseStatus(status)
	wf.RequestID = requestID.String
	wf.ClientID = clientID.String
	wf.Strategy = strategy.String
	wf.OutputTaskID = outputTaskID.String
	wf.Error = errorMessage.String
	if completedAt.Valid {
		wf.CompletedAt = &completedAt.Time
	}
	return wf, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
