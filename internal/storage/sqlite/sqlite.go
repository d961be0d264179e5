package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/stratus-lite/internal/storage"
)

// busyTimeoutMillis bounds how long a journal write waits on a locked
// database before failing.
const busyTimeoutMillis = 5000

// SQLiteStorage journals workflows and tasks in a SQLite database.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// New opens the journal at path. The database runs in WAL mode behind a
// single connection, so journal writes from the controller serialize.
func New(path string) (*SQLiteStorage, error) {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", fmt.Sprint(busyTimeoutMillis))
	params.Set("_foreign_keys", "ON")

	db, err := sql.Open("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &SQLiteStorage{db: db, path: path}, nil
}

// Path returns the database file the journal was opened on.
func (s *SQLiteStorage) Path() string { return s.path }

func (s *SQLiteStorage) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin journal transaction: %w", err)
	}
	return &unitOfWork{
		tx:        tx,
		workflows: &workflowRepo{tx: tx},
		tasks:     &taskRepo{tx: tx},
	}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.db)
}

// unitOfWork scopes both repositories to one transaction.
type unitOfWork struct {
	tx        *sql.Tx
	workflows *workflowRepo
	tasks     *taskRepo
}

func (u *unitOfWork) Workflows() storage.WorkflowRepository { return u.workflows }

func (u *unitOfWork) Tasks() storage.TaskRepository { return u.tasks }

func (u *unitOfWork) Commit() error { return u.tx.Commit() }

// Rollback is safe to defer after Commit.
func (u *unitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}
