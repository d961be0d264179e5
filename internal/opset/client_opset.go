package opset

import (
	"context"
	"sync"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
)

// ClientOpSet is an op set bound to the backend that will run it.
type ClientOpSet struct {
	*OpSet
	client  backend.Client
	request *domain.Request

	once      sync.Once
	mu        sync.Mutex
	handle    backend.Handle
	submitErr error
}

// NewClientOpSet binds set to client. req is the originating request.
func NewClientOpSet(client backend.Client, req *domain.Request, set *OpSet) *ClientOpSet {
	return &ClientOpSet{OpSet: set, client: client, request: req}
}

// Client returns the bound backend.
func (c *ClientOpSet) Client() backend.Client { return c.client }

// ClientID returns the bound backend's ID.
func (c *ClientOpSet) ClientID() string { return c.client.ID() }

// Request returns the backend-scoped sub-request.
func (c *ClientOpSet) Request() *domain.Request {
	return c.FilterRequest(c.request)
}

// Submit sends the sub-request to the backend with the dependency results
// as inputs. Only the first call reaches the backend; later calls return
// the cached handle or error.
func (c *ClientOpSet) Submit(ctx context.Context, deps []*domain.TaskResult) (backend.Handle, error) {
	c.once.Do(func() {
		h, err := c.client.Request(ctx, c.Request(), deps)
		c.mu.Lock()
		c.handle, c.submitErr = h, err
		c.mu.Unlock()
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle, c.submitErr
}

// Handle returns the backend handle, or nil before submission.
func (c *ClientOpSet) Handle() backend.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Status reports IDLE before submission, ERROR if submission failed, and
// the backend-reported status afterwards.
func (c *ClientOpSet) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.submitErr != nil:
		return domain.StatusError
	case c.handle == nil:
		return domain.StatusIdle
	default:
		return c.handle.Status()
	}
}

// Exception returns the submission error or the backend's exception.
func (c *ClientOpSet) Exception() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return c.submitErr
	}
	if c.handle != nil {
		return c.handle.Exception()
	}
	return nil
}
