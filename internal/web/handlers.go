package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/request"
	"github.com/example/stratus-lite/internal/service"
	"github.com/example/stratus-lite/internal/storage"
	"github.com/example/stratus-lite/pkg/id"
)

const maxRequestBody = 1 << 20

// Handlers contains HTTP handlers for the web API
type Handlers struct {
	orchestrator *service.Orchestrator
}

// NewHandlers creates new API handlers
func NewHandlers(orchestrator *service.Orchestrator) *Handlers {
	return &Handlers{orchestrator: orchestrator}
}

// ListWorkflows handles GET /api/workflows?status=COMPLETED,ERROR&limit=20&offset=0
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.orchestrator.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	response := ListWorkflowsResponse{Workflows: make([]WorkflowSummary, 0, len(records))}
	for _, wf := range records {
		response.Workflows = append(response.Workflows, summarize(wf))
	}
	writeJSON(w, http.StatusOK, response)
}

// SubmitWorkflow handles POST /api/workflows. The body is a YAML or JSON
// request document. Compile failures still answer 202 with the workflow
// in ERROR.
func (h *Handlers) SubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, fmt.Errorf("%w: read body: %v", domain.ErrInvalidArgument, err))
		return
	}
	req, err := request.Decode(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		req.ID = id.Prefixed("req")
	}
	if err := request.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	wf, err := h.orchestrator.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := SubmitWorkflowResponse{ID: wf.ID(), RequestID: req.ID, Status: wf.Status().String()}
	if err := wf.Exception(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// GetWorkflow handles GET /api/workflows/{id}
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, tasks, err := h.orchestrator.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	detail := WorkflowDetail{
		WorkflowSummary: summarize(wf),
		OutputTaskID:    wf.OutputTaskID,
		Tasks:           make([]TaskInfo, 0, len(tasks)),
	}
	for _, t := range tasks {
		detail.Tasks = append(detail.Tasks, convertTask(t))
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetTimeline handles GET /api/workflows/{id}/timeline
func (h *Handlers) GetTimeline(w http.ResponseWriter, r *http.Request) {
	wf, tasks, err := h.orchestrator.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline(wf, tasks))
}

// CancelWorkflow handles POST /api/workflows/{id}/cancel
func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Cancel(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListBackends handles GET /api/backends
func (h *Handlers) ListBackends(w http.ResponseWriter, r *http.Request) {
	reg := h.orchestrator.Registry()
	clients := reg.Clients()
	out := make([]BackendInfo, 0, len(clients))
	for _, c := range clients {
		out = append(out, BackendInfo{ID: c.ID(), Patterns: reg.Patterns(c.ID())})
	}
	writeJSON(w, http.StatusOK, out)
}

func listOptions(r *http.Request) (storage.ListOptions, error) {
	q := r.URL.Query()
	var opts storage.ListOptions
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st := domain.ParseStatus(strings.ToUpper(strings.TrimSpace(part)))
			if st == domain.StatusUnknown {
				return opts, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, part)
			}
			opts.Statuses = append(opts.Statuses, st)
		}
	}
	for key, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidArgument, key)
		}
		*dst = n
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}
