package domain

import "time"

// WorkflowRecord is the persisted view of a workflow.
type WorkflowRecord struct {
	ID           string
	RequestID    string
	ClientID     string
	Status       Status
	Strategy     string
	OutputTaskID string
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// TaskRecord is the persisted view of one workflow task.
type TaskRecord struct {
	ID          string
	WorkflowID  string
	BackendID   string
	OpIDs       []string
	Inputs      []string
	Outputs     []string
	Status      Status
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
