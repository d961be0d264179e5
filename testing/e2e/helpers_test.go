package e2e

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/observability"
	"github.com/example/stratus-lite/internal/service"
	"github.com/example/stratus-lite/internal/storage"
	"github.com/example/stratus-lite/internal/storage/sqlite"
	grpctransport "github.com/example/stratus-lite/internal/transport/grpc"
	"github.com/example/stratus-lite/internal/workflow"
)

// TestEnv provides a complete test environment: a journaled orchestrator
// whose backends are real gRPC servers on in-memory listeners.
type TestEnv struct {
	Storage      *sqlite.SQLiteStorage
	Registry     *backend.Registry
	Orchestrator *service.Orchestrator
	Metrics      *observability.Metrics

	// MockBackends is a registry of mock backends by ID
	MockBackends map[string]*MockBackend
	mu           sync.Mutex

	t *testing.T
}

// EnvOption adjusts the orchestrator configuration.
type EnvOption func(*service.Config)

// WithStrategy selects the execution strategy.
func WithStrategy(name string) EnvOption {
	return func(c *service.Config) { c.Strategy = name }
}

// WithMultipleOutputs allows workflows with several output tasks.
func WithMultipleOutputs() EnvOption {
	return func(c *service.Config) { c.MultipleOutputs = true }
}

// NewTestEnv creates a new test environment with a temp database.
// Backends must be added before Start.
func NewTestEnv(t *testing.T, opts ...EnvOption) *TestEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "stratus.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := service.DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	for _, opt := range opts {
		opt(&cfg)
	}

	reg := backend.NewRegistry(nil)
	metrics := observability.NewMetrics()
	return &TestEnv{
		Storage:      store,
		Registry:     reg,
		Orchestrator: service.NewOrchestrator(reg, store, cfg, service.WithMetrics(metrics)),
		Metrics:      metrics,
		MockBackends: make(map[string]*MockBackend),
		t:            t,
	}
}

// Start starts the controller.
func (e *TestEnv) Start() {
	e.Orchestrator.Start()
	e.t.Cleanup(e.Orchestrator.Stop)
}

// AddBackend serves a new mock backend over gRPC and registers a remote
// client for it.
func (e *TestEnv) AddBackend(ctx context.Context, id string, epas ...string) *MockBackend {
	e.t.Helper()

	mock := NewMockBackend(id, epas)
	lis := bufconn.Listen(1 << 20)
	srv := grpctransport.NewServer(mock)
	go func() { _ = srv.Serve(lis) }()
	e.t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///"+id,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		e.t.Fatalf("failed to dial backend %s: %v", id, err)
	}
	client := grpctransport.NewClient(id, conn)
	e.t.Cleanup(func() { _ = client.Close() })
	if err := e.Registry.Register(ctx, client); err != nil {
		e.t.Fatalf("failed to register backend %s: %v", id, err)
	}

	e.mu.Lock()
	e.MockBackends[id] = mock
	e.mu.Unlock()
	return mock
}

// Submit submits a request and fails the test on a journal error.
func (e *TestEnv) Submit(ctx context.Context, req *domain.Request) *workflow.Workflow {
	e.t.Helper()
	w, err := e.Orchestrator.Submit(ctx, req)
	if err != nil {
		e.t.Fatalf("failed to submit %s: %v", req.ID, err)
	}
	return w
}

// Wait waits for a workflow to finish, bounded by timeout.
func (e *TestEnv) Wait(w *workflow.Workflow, timeout time.Duration) (*domain.TaskResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return e.Orchestrator.Wait(ctx, w.ID())
}

// GetRecords reads the journal for a workflow.
func (e *TestEnv) GetRecords(ctx context.Context, id string) (*domain.WorkflowRecord, []*domain.TaskRecord) {
	e.t.Helper()
	wf, tasks, err := e.Orchestrator.Get(ctx, id)
	if err != nil {
		e.t.Fatalf("failed to read journal for %s: %v", id, err)
	}
	return wf, tasks
}

// ListRecords lists journaled workflows.
func (e *TestEnv) ListRecords(ctx context.Context, statuses ...domain.Status) []*domain.WorkflowRecord {
	e.t.Helper()
	records, err := e.Orchestrator.List(ctx, storage.ListOptions{Statuses: statuses})
	if err != nil {
		e.t.Fatalf("failed to list workflows: %v", err)
	}
	return records
}

// WaitFor polls cond until it holds or the timeout expires.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// TaskOn returns the workflow task running on the given backend.
func TaskOn(t *testing.T, w *workflow.Workflow, backendID string) *workflow.Task {
	t.Helper()
	for _, task := range w.Tasks() {
		if task.ClientOpSet().ClientID() == backendID {
			return task
		}
	}
	t.Fatalf("no task on backend %s", backendID)
	return nil
}

// MockBackend is an in-process backend with a fixed op vocabulary that
// records every sub-request it receives.
//
//	const  returns params.value
//	add    sums its inputs
//	hold   blocks until Release(op id), then returns params.value
//	fail   fails with params.message
type MockBackend struct {
	*backend.LocalClient

	mu       sync.Mutex
	received []*domain.Request
	gates    map[string]chan struct{}
}

// NewMockBackend creates a mock backend serving epas.
func NewMockBackend(id string, epas []string) *MockBackend {
	m := &MockBackend{
		LocalClient: backend.NewLocalClient(id, epas),
		gates:       make(map[string]chan struct{}),
	}
	m.Handle("const", func(_ context.Context, op domain.OpDescriptor, _ []any) (any, error) {
		return op.Params["value"], nil
	})
	m.Handle("add", func(_ context.Context, _ domain.OpDescriptor, args []any) (any, error) {
		var total float64
		for _, a := range args {
			n, ok := a.(float64)
			if !ok {
				return nil, fmt.Errorf("not a number: %v", a)
			}
			total += n
		}
		return total, nil
	})
	m.Handle("hold", func(ctx context.Context, op domain.OpDescriptor, _ []any) (any, error) {
		select {
		case <-m.gate(op.ID):
			return op.Params["value"], nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	m.Handle("fail", func(_ context.Context, op domain.OpDescriptor, _ []any) (any, error) {
		return nil, fmt.Errorf("%v", op.Params["message"])
	})
	return m
}

// Request implements backend.Client.
func (m *MockBackend) Request(ctx context.Context, req *domain.Request, deps []*domain.TaskResult) (backend.Handle, error) {
	m.mu.Lock()
	m.received = append(m.received, req)
	m.mu.Unlock()
	return m.LocalClient.Request(ctx, req, deps)
}

func (m *MockBackend) gate(opID string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gates[opID]; !ok {
		m.gates[opID] = make(chan struct{})
	}
	return m.gates[opID]
}

// Release lets a held op finish.
func (m *MockBackend) Release(opID string) {
	close(m.gate(opID))
}

// GetRequestCount returns the number of sub-requests received.
func (m *MockBackend) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

// ReceivedOpIDs returns the op IDs of each received sub-request.
func (m *MockBackend) ReceivedOpIDs() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, 0, len(m.received))
	for _, req := range m.received {
		ids := make([]string, 0, len(req.Ops))
		for _, op := range req.Ops {
			ids = append(ids, op.ID)
		}
		out = append(out, ids)
	}
	return out
}

// op is shorthand for building an op descriptor.
func op(id, name string, inputs []string, result string, params map[string]any) domain.OpDescriptor {
	return domain.OpDescriptor{ID: id, Name: name, Input: inputs, Result: result, Params: params}
}

func value(v any) map[string]any {
	return map[string]any{"value": v}
}
