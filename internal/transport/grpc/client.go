package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
)

const callTimeout = 5 * time.Second

// Client is a backend.Client talking to a remote Server.
type Client struct {
	id         string
	conn       grpc.ClientConnInterface
	closer     func() error
	statusRate rate.Limit
	logger     *slog.Logger
}

var _ backend.Client = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithStatusRate caps Status polls per handle at r per second. Throttled
// polls return the last known status. Zero or less means unlimited.
func WithStatusRate(r float64) ClientOption {
	return func(c *Client) {
		if r > 0 {
			c.statusRate = rate.Limit(r)
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient wraps an existing connection. id names the backend in the
// local registry.
func NewClient(id string, conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{
		id:         id,
		conn:       conn,
		statusRate: rate.Inf,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "grpc-client", "backend", id)
	return c
}

// Dial creates a client for addr using insecure credentials. The
// connection is established lazily.
func Dial(id, addr string, opts ...ClientOption) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial backend %s at %s: %w", id, addr, err)
	}
	c := NewClient(id, conn, opts...)
	c.closer = conn.Close
	return c, nil
}

// Close closes a connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) ID() string { return c.id }

func (c *Client) Capabilities(ctx context.Context, kind string) (map[string][]string, error) {
	var out capabilitiesReply
	if err := c.invoke(ctx, methodCapabilities, capabilitiesRequest{Kind: kind}, &out); err != nil {
		return nil, err
	}
	return out.Capabilities, nil
}

func (c *Client) Request(ctx context.Context, req *domain.Request, deps []*domain.TaskResult) (backend.Handle, error) {
	var ref handleRef
	if err := c.invoke(ctx, methodSubmit, submitRequest{Request: req, Deps: deps}, &ref); err != nil {
		return nil, err
	}
	h := &remoteHandle{
		client:  c,
		id:      ref.HandleID,
		status:  domain.StatusExecuting,
		limiter: rate.NewLimiter(c.statusRate, 1),
	}
	c.logger.DebugContext(ctx, "submitted", "request", req.ID, "handle", h.id)
	return h, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	msg, err := toStruct(in)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrInvalidArgument, method, err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), msg, resp); err != nil {
		return statusToError(err)
	}
	return fromStruct(resp, out)
}

// remoteHandle mirrors a handle held by the server. Final state is cached
// so no call is made once it is known.
type remoteHandle struct {
	client  *Client
	id      string
	limiter *rate.Limiter

	mu     sync.Mutex
	status domain.Status
	err    error
	result *domain.TaskResult
}

var _ backend.Canceler = (*remoteHandle)(nil)

func (h *remoteHandle) ID() string { return h.id }

func (h *remoteHandle) cached() (domain.Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.err
}

func (h *remoteHandle) Status() domain.Status {
	s, _ := h.cached()
	if s.IsFinal() || !h.limiter.Allow() {
		return s
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var out statusReply
	if err := h.client.invoke(ctx, methodStatus, handleRef{HandleID: h.id}, &out); err != nil {
		h.client.logger.Debug("status poll failed", "handle", h.id, "error", err)
		return domain.StatusUnknown
	}
	h.apply(out)
	s, _ = h.cached()
	return s
}

func (h *remoteHandle) Exception() error {
	_, err := h.cached()
	return err
}

func (h *remoteHandle) Result(ctx context.Context, block bool, timeout time.Duration) (*domain.TaskResult, error) {
	if res, done, err := h.final(); done {
		return res, err
	}

	var out statusReply
	req := resultRequest{HandleID: h.id, Block: block, TimeoutMillis: timeout.Milliseconds()}
	if err := h.client.invoke(ctx, methodResult, req, &out); err != nil {
		return nil, err
	}
	h.apply(out)
	if res, done, err := h.final(); done {
		return res, err
	}
	if block && timeout > 0 {
		return nil, fmt.Errorf("%w: timed out after %s", domain.ErrNotReady, timeout)
	}
	return nil, domain.ErrNotReady
}

// Cancel asks the server to cancel the handle. It is best effort.
func (h *remoteHandle) Cancel() {
	if s, _ := h.cached(); s.IsFinal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var out statusReply
	if err := h.client.invoke(ctx, methodCancel, handleRef{HandleID: h.id}, &out); err != nil {
		h.client.logger.Debug("cancel failed", "handle", h.id, "error", err)
		return
	}
	h.apply(out)
}

// final reports the cached outcome once the handle is terminal.
func (h *remoteHandle) final() (*domain.TaskResult, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.status.IsFinal() {
		return nil, false, nil
	}
	if h.err != nil {
		return nil, true, h.err
	}
	return h.result, true, nil
}

func (h *remoteHandle) apply(out statusReply) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.IsFinal() {
		return
	}
	h.status = out.Status
	if out.Error != "" {
		h.err = kindError(out.ErrorKind, out.Error)
	} else if out.Status.IsFailure() {
		h.err = fmt.Errorf("%w: handle %s", domain.ErrCanceled, h.id)
		if out.Status == domain.StatusError {
			h.err = fmt.Errorf("%w: handle %s", domain.ErrBackendExecution, h.id)
		}
	}
	if out.Result != nil {
		h.result = out.Result
	}
	if out.Status == domain.StatusCompleted && h.result == nil {
		h.result = &domain.TaskResult{Data: map[string]any{}}
	}
}
