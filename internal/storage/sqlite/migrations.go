package sqlite

import (
	"context"
	"database/sql"
)

// Migrate runs all database migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		// Workflows table
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			client_id TEXT,
			status TEXT NOT NULL,
			strategy TEXT,
			output_task_id TEXT,
			error_message TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,

		// Tasks table
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			backend_id TEXT NOT NULL,
			op_ids_json TEXT NOT NULL,
			inputs_json TEXT NOT NULL,
			outputs_json TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME,
			PRIMARY KEY (workflow_id, id),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_created ON workflows(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(workflow_id, status)`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}

	return nil
}
