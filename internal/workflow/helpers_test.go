package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/internal/opset"
)

// testEnv holds local backends whose ops can be held open by gates.
type testEnv struct {
	t        *testing.T
	registry *backend.Registry
	mu       sync.Mutex
	gates    map[string]chan struct{}
	calls    map[string]*atomic.Int32
}

func newTestEnv(t *testing.T, backends map[string][]string) *testEnv {
	t.Helper()
	env := &testEnv{
		t:        t,
		registry: backend.NewRegistry(nil),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]*atomic.Int32),
	}
	for id, epas := range backends {
		c := backend.NewLocalClient(id, epas)
		c.Handle("op", env.handle)
		c.Handle("fail", func(_ context.Context, op domain.OpDescriptor, _ []any) (any, error) {
			env.counter(op.ID).Add(1)
			return nil, errors.New("backend exploded")
		})
		require.NoError(t, env.registry.Register(context.Background(), c))
	}
	return env
}

func (e *testEnv) counter(opID string) *atomic.Int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.calls[opID]
	if !ok {
		c = &atomic.Int32{}
		e.calls[opID] = c
	}
	return c
}

func (e *testEnv) calledTimes(opID string) int32 {
	return e.counter(opID).Load()
}

// gate makes the op with the given ID block until release is called.
func (e *testEnv) gate(opID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gates[opID] = make(chan struct{})
}

func (e *testEnv) release(opID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	close(e.gates[opID])
}

// handle sums its numeric inputs plus the "value" param.
func (e *testEnv) handle(ctx context.Context, op domain.OpDescriptor, args []any) (any, error) {
	e.counter(op.ID).Add(1)
	e.mu.Lock()
	gate := e.gates[op.ID]
	e.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	total := 0
	if v, ok := op.Params["value"].(int); ok {
		total = v
	}
	for _, a := range args {
		total += a.(int)
	}
	return total, nil
}

func (e *testEnv) tasks(req *domain.Request) []*Task {
	e.t.Helper()
	sets, err := opset.Compile(e.registry, req)
	require.NoError(e.t, err)
	out := make([]*Task, 0, len(sets))
	for _, s := range sets {
		out = append(out, NewTask(s))
	}
	return out
}

func taskFor(t *testing.T, w *Workflow, opID string) *Task {
	t.Helper()
	for _, task := range w.Tasks() {
		if task.ClientOpSet().Contains(opID) {
			return task
		}
	}
	t.Fatalf("no task holds op %s", opID)
	return nil
}

func run(t *testing.T, w *Workflow) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.Run(ctx, 5*time.Millisecond)
}

// waitFor polls cond, calling Update between checks.
func waitFor(t *testing.T, w *Workflow, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		w.Update(context.Background())
		time.Sleep(2 * time.Millisecond)
	}
}

type recorder struct {
	mu       sync.Mutex
	workflow []domain.Status
	taskSeen map[string][]domain.Status
}

func (r *recorder) WorkflowStatusChanged(_ *Workflow, _, to domain.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflow = append(r.workflow, to)
}

func (r *recorder) TaskStatusChanged(_ *Workflow, t *Task, _, to domain.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taskSeen == nil {
		r.taskSeen = make(map[string][]domain.Status)
	}
	r.taskSeen[t.ID()] = append(r.taskSeen[t.ID()], to)
}
