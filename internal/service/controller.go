package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/stratus-lite/internal/observability"
	"github.com/example/stratus-lite/internal/workflow"
)

type controlled struct {
	w         *workflow.Workflow
	done      chan struct{}
	retiredAt time.Time
}

// Controller drives every active workflow from a single goroutine. It
// makes one Update pass per tick, or as soon as any task settles.
type Controller struct {
	interval time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger

	// retention keeps a retired workflow addressable by Done before it is
	// dropped and evict is called with its ID.
	retention time.Duration
	evict     func(id string)

	mu      sync.Mutex
	active  []*controlled
	retired []*controlled
	byID    map[string]*controlled

	wake    chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewController creates a Controller. metrics may be nil.
func NewController(interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Controller {
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		interval: interval,
		metrics:  metrics,
		logger:   logger.With("component", "controller"),
		byID:     make(map[string]*controlled),
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the control loop. Calling Start twice is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.wg.Add(1)
	go c.loop()
}

// Stop cancels every active workflow, makes a final pass so they settle,
// and stops the loop.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	active := append([]*controlled(nil), c.active...)
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()

	for _, e := range active {
		e.w.Cancel()
	}
	c.pass(context.Background())
}

// Add registers a workflow and returns a channel closed once the
// controller has seen it reach a terminal state.
func (c *Controller) Add(w *workflow.Workflow) <-chan struct{} {
	e := &controlled{w: w, done: make(chan struct{})}
	c.mu.Lock()
	c.active = append(c.active, e)
	c.byID[w.ID()] = e
	c.mu.Unlock()
	c.Notify()
	return e.done
}

// Done returns the done channel of a registered workflow.
func (c *Controller) Done(id string) (<-chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return e.done, true
}

// Active returns the number of workflows not yet terminal.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Notify wakes the loop. It never blocks.
func (c *Controller) Notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
		case <-c.wake:
		}
		c.pass(ctx)
	}
}

// pass calls Update on every active workflow and retires the terminal ones.
func (c *Controller) pass(ctx context.Context) {
	start := time.Now()

	c.mu.Lock()
	active := append([]*controlled(nil), c.active...)
	c.mu.Unlock()

	var finished []*controlled
	for _, e := range active {
		if e.w.Update(ctx) {
			finished = append(finished, e)
		}
	}

	now := time.Now()
	if len(finished) > 0 {
		c.mu.Lock()
		kept := c.active[:0]
		for _, e := range c.active {
			if !containsEntry(finished, e) {
				kept = append(kept, e)
			}
		}
		c.active = kept
		for _, e := range finished {
			e.retiredAt = now
		}
		c.retired = append(c.retired, finished...)
		c.mu.Unlock()

		for _, e := range finished {
			c.logger.Debug("workflow retired", "workflow", e.w.ID(), "status", e.w.Status())
			close(e.done)
		}
	}
	c.prune(now)

	if c.metrics != nil {
		c.metrics.ControllerPass(time.Since(start))
	}
}

// prune forgets retired workflows older than the retention period.
func (c *Controller) prune(now time.Time) {
	c.mu.Lock()
	var dropped []string
	kept := c.retired[:0]
	for _, e := range c.retired {
		if now.Sub(e.retiredAt) >= c.retention {
			delete(c.byID, e.w.ID())
			dropped = append(dropped, e.w.ID())
			continue
		}
		kept = append(kept, e)
	}
	clear(c.retired[len(kept):])
	c.retired = kept
	c.mu.Unlock()

	if c.evict != nil {
		for _, id := range dropped {
			c.evict(id)
		}
	}
}

func containsEntry(entries []*controlled, e *controlled) bool {
	for _, x := range entries {
		if x == e {
			return true
		}
	}
	return false
}
