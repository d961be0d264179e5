package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/domain"
)

// Capabilities implements the Capabilities RPC.
func (s *Server) Capabilities(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req capabilitiesRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, MapErrorToStatus(err)
	}
	if req.Kind == "" {
		req.Kind = backend.CapabilityEpas
	}
	caps, err := s.backend.Capabilities(ctx, req.Kind)
	if err != nil {
		return nil, MapErrorToStatus(err)
	}
	return reply(capabilitiesReply{Capabilities: caps})
}

// Submit implements the Submit RPC.
func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req submitRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, MapErrorToStatus(err)
	}
	if req.Request == nil {
		return nil, MapErrorToStatus(fmt.Errorf("%w: missing request", domain.ErrInvalidArgument))
	}

	h, err := s.backend.Request(ctx, req.Request, req.Deps)
	if err != nil {
		return nil, MapErrorToStatus(err)
	}

	s.mu.Lock()
	if _, exists := s.handles[h.ID()]; exists {
		s.mu.Unlock()
		backend.Cancel(h)
		return nil, MapErrorToStatus(fmt.Errorf("%w: handle %s", domain.ErrAlreadyExists, h.ID()))
	}
	s.handles[h.ID()] = h
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "submitted", "request", req.Request.ID, "handle", h.ID(), "ops", len(req.Request.Ops))
	return reply(handleRef{HandleID: h.ID()})
}

// Status implements the Status RPC.
func (s *Server) Status(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	h, err := s.lookup(in)
	if err != nil {
		return nil, MapErrorToStatus(err)
	}
	out := statusReply{Status: h.Status()}
	if out.Status.IsFailure() {
		setError(&out, h.Exception())
	}
	return reply(out)
}

// Result implements the Result RPC. A final reply releases the handle.
func (s *Server) Result(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req resultRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, MapErrorToStatus(err)
	}
	h, err := s.handle(req.HandleID)
	if err != nil {
		return nil, MapErrorToStatus(err)
	}

	res, err := h.Result(ctx, req.Block, time.Duration(req.TimeoutMillis)*time.Millisecond)
	if errors.Is(err, domain.ErrNotReady) {
		return reply(statusReply{Status: h.Status()})
	}
	if err != nil && !h.Status().IsFinal() {
		// The call itself was cut short, not the work.
		return nil, MapErrorToStatus(err)
	}

	out := statusReply{Status: h.Status(), Result: res}
	if err != nil {
		setError(&out, err)
	}
	s.release(req.HandleID)
	return reply(out)
}

// Cancel implements the Cancel RPC.
func (s *Server) Cancel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	h, err := s.lookup(in)
	if err != nil {
		return nil, MapErrorToStatus(err)
	}
	backend.Cancel(h)
	s.logger.InfoContext(ctx, "canceled", "handle", h.ID())

	out := statusReply{Status: h.Status()}
	if out.Status.IsFinal() {
		setError(&out, h.Exception())
		s.release(h.ID())
	}
	return reply(out)
}

func (s *Server) lookup(in *structpb.Struct) (backend.Handle, error) {
	var ref handleRef
	if err := fromStruct(in, &ref); err != nil {
		return nil, err
	}
	return s.handle(ref.HandleID)
}

func (s *Server) handle(id string) (backend.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: handle %q", domain.ErrNotFound, id)
	}
	return h, nil
}

func (s *Server) release(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

func setError(out *statusReply, err error) {
	if err == nil {
		return
	}
	out.Error = err.Error()
	out.ErrorKind = errorKind(err)
}

func reply(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, MapErrorToStatus(fmt.Errorf("encode reply: %w", err))
	}
	return out, nil
}
