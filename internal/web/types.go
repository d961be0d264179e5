package web

import (
	"time"

	"github.com/example/stratus-lite/internal/domain"
)

// WorkflowSummary is one entry of GET /api/workflows.
type WorkflowSummary struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"requestId"`
	ClientID    string     `json:"clientId,omitempty"`
	Status      string     `json:"status"`
	Strategy    string     `json:"strategy,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ListWorkflowsResponse is the response for GET /api/workflows.
type ListWorkflowsResponse struct {
	Workflows []WorkflowSummary `json:"workflows"`
}

// SubmitWorkflowResponse is the response for POST /api/workflows.
type SubmitWorkflowResponse struct {
	ID        string `json:"id"`
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// WorkflowDetail is the response for GET /api/workflows/{id}.
type WorkflowDetail struct {
	WorkflowSummary
	OutputTaskID string     `json:"outputTaskId,omitempty"`
	Tasks        []TaskInfo `json:"tasks"`
}

// TaskInfo describes one task of a workflow.
type TaskInfo struct {
	ID          string     `json:"id"`
	Backend     string     `json:"backend"`
	Ops         []string   `json:"ops"`
	Inputs      []string   `json:"inputs,omitempty"`
	Outputs     []string   `json:"outputs,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TimelineResponse is the response for GET /api/workflows/{id}/timeline.
type TimelineResponse struct {
	WorkflowID string         `json:"workflowId"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Nodes      []TimelineNode `json:"nodes"`
}

// TimelineNode is a task placed on the timeline with the tasks it waits for.
type TimelineNode struct {
	ID           string     `json:"id"`
	Backend      string     `json:"backend"`
	State        string     `json:"state"`
	StartTime    *time.Time `json:"startTime,omitempty"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
}

// BackendInfo is one entry of GET /api/backends.
type BackendInfo struct {
	ID       string   `json:"id"`
	Patterns []string `json:"patterns"`
}

// ErrorResponse is written for every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
}

func summarize(wf *domain.WorkflowRecord) WorkflowSummary {
	return WorkflowSummary{
		ID:          wf.ID,
		RequestID:   wf.RequestID,
		ClientID:    wf.ClientID,
		Status:      wf.Status.String(),
		Strategy:    wf.Strategy,
		Error:       wf.Error,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
		CompletedAt: wf.CompletedAt,
	}
}

func convertTask(t *domain.TaskRecord) TaskInfo {
	return TaskInfo{
		ID:          t.ID,
		Backend:     t.BackendID,
		Ops:         t.OpIDs,
		Inputs:      t.Inputs,
		Outputs:     t.Outputs,
		Status:      t.Status.String(),
		Error:       t.Error,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// timeline links each task to the tasks producing its inputs.
func timeline(wf *domain.WorkflowRecord, tasks []*domain.TaskRecord) TimelineResponse {
	producer := make(map[string]string)
	for _, t := range tasks {
		for _, out := range t.Outputs {
			producer[out] = t.ID
		}
	}

	resp := TimelineResponse{
		WorkflowID: wf.ID,
		CreatedAt:  wf.CreatedAt,
		UpdatedAt:  wf.UpdatedAt,
		Nodes:      make([]TimelineNode, 0, len(tasks)),
	}
	for _, t := range tasks {
		node := TimelineNode{
			ID:        t.ID,
			Backend:   t.BackendID,
			State:     t.Status.String(),
			StartTime: t.StartedAt,
			EndTime:   t.CompletedAt,
		}
		for _, in := range t.Inputs {
			if p, ok := producer[in]; ok && p != t.ID && !contains(node.Dependencies, p) {
				node.Dependencies = append(node.Dependencies, p)
			}
		}
		resp.Nodes = append(resp.Nodes, node)
	}
	return resp
}

func contains(items []string, s string) bool {
	for _, x := range items {
		if x == s {
			return true
		}
	}
	return false
}
