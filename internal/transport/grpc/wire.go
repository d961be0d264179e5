package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/stratus-lite/internal/domain"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "stratus.v1.Backend"

const (
	methodCapabilities = "Capabilities"
	methodSubmit       = "Submit"
	methodStatus       = "Status"
	methodResult       = "Result"
	methodCancel       = "Cancel"
)

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// backendServer is the handler type registered under ServiceName. Every
// message is a google.protobuf.Struct.
type backendServer interface {
	Capabilities(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Result(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Cancel(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*backendServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodCapabilities, backendServer.Capabilities),
		unary(methodSubmit, backendServer.Submit),
		unary(methodStatus, backendServer.Status),
		unary(methodResult, backendServer.Result),
		unary(methodCancel, backendServer.Cancel),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stratus/v1/backend.proto",
}

func unary(name string, call func(backendServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(backendServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(backendServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// Wire messages. They travel as Structs via their JSON form.

type capabilitiesRequest struct {
	Kind string `json:"kind"`
}

type capabilitiesReply struct {
	Capabilities map[string][]string `json:"capabilities"`
}

type submitRequest struct {
	Request *domain.Request      `json:"request"`
	Deps    []*domain.TaskResult `json:"deps,omitempty"`
}

type handleRef struct {
	HandleID string `json:"handle_id"`
}

type resultRequest struct {
	HandleID      string `json:"handle_id"`
	Block         bool   `json:"block,omitempty"`
	TimeoutMillis int64  `json:"timeout_ms,omitempty"`
}

type statusReply struct {
	Status    domain.Status      `json:"status"`
	Error     string             `json:"error,omitempty"`
	ErrorKind string             `json:"error_kind,omitempty"`
	Result    *domain.TaskResult `json:"result,omitempty"`
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// errorKinds names the sentinels that survive the wire. More specific
// sentinels come first.
var errorKinds = []struct {
	kind string
	err  error
}{
	{"canceled", domain.ErrCanceled},
	{"dependency_incomplete", domain.ErrDependencyIncomplete},
	{"capability", domain.ErrCapability},
	{"cyclic_dependency", domain.ErrCyclicDependency},
	{"configuration", domain.ErrConfiguration},
	{"not_found", domain.ErrNotFound},
	{"not_ready", domain.ErrNotReady},
	{"already_exists", domain.ErrAlreadyExists},
	{"invalid_argument", domain.ErrInvalidArgument},
	{"backend_execution", domain.ErrBackendExecution},
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}

// remoteError carries a backend's error message with its sentinel restored.
type remoteError struct {
	msg  string
	kind error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

func kindError(kind, msg string) error {
	for _, k := range errorKinds {
		if k.kind == kind {
			return &remoteError{msg: msg, kind: k.err}
		}
	}
	return &remoteError{msg: msg, kind: domain.ErrBackendExecution}
}

// MapErrorToStatus maps domain errors to gRPC status codes.
func MapErrorToStatus(err error) error {
	if err == nil {
		return nil
	}

	// Already a gRPC status error
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrCapability):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrCyclicDependency):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrNotReady):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, domain.ErrCanceled), errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// statusToError is the client-side inverse of MapErrorToStatus.
func statusToError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = domain.ErrNotFound
	case codes.InvalidArgument:
		sentinel = domain.ErrInvalidArgument
	case codes.AlreadyExists:
		sentinel = domain.ErrAlreadyExists
	case codes.Unimplemented:
		sentinel = domain.ErrCapability
	case codes.FailedPrecondition:
		sentinel = domain.ErrConfiguration
	case codes.DeadlineExceeded:
		sentinel = domain.ErrNotReady
	case codes.Canceled:
		sentinel = domain.ErrCanceled
	default:
		return fmt.Errorf("%w: %s", domain.ErrBackendExecution, st.Message())
	}
	return &remoteError{msg: st.Message(), kind: sentinel}
}
