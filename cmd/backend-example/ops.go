package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/stratus-lite/internal/backend"
	"github.com/example/stratus-lite/internal/ctxlog"
	"github.com/example/stratus-lite/internal/domain"
)

// newMathBackend registers the arithmetic ops.
//
//	const  params.value
//	add    exactly two inputs
//	mul    product of the inputs, times params.factor when set
//	sum    every input, flattening lists
//	sleep  waits params.ms milliseconds, then passes its first input through
//	fail   always fails with params.message
func newMathBackend(id string, epas []string, opts ...backend.LocalOption) *backend.LocalClient {
	c := backend.NewLocalClient(id, epas, opts...)
	c.Handle("const", opConst)
	c.Handle("add", opAdd)
	c.Handle("mul", opMul)
	c.Handle("sum", opSum)
	c.Handle("sleep", opSleep)
	c.Handle("fail", opFail)
	return c
}

func opConst(_ context.Context, op domain.OpDescriptor, _ []any) (any, error) {
	v, ok := op.Params["value"]
	if !ok {
		return nil, fmt.Errorf("%w: const needs a value", domain.ErrInvalidArgument)
	}
	return v, nil
}

func opAdd(_ context.Context, _ domain.OpDescriptor, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: add takes 2 inputs, got %d", domain.ErrInvalidArgument, len(args))
	}
	a, err := number(args[0])
	if err != nil {
		return nil, err
	}
	b, err := number(args[1])
	if err != nil {
		return nil, err
	}
	return a + b, nil
}

func opMul(_ context.Context, op domain.OpDescriptor, args []any) (any, error) {
	product := 1.0
	for _, arg := range args {
		n, err := number(arg)
		if err != nil {
			return nil, err
		}
		product *= n
	}
	if f, ok := op.Params["factor"]; ok {
		n, err := number(f)
		if err != nil {
			return nil, err
		}
		product *= n
	}
	return product, nil
}

func opSum(_ context.Context, _ domain.OpDescriptor, args []any) (any, error) {
	var total float64
	var add func(v any) error
	add = func(v any) error {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				if err := add(item); err != nil {
					return err
				}
			}
			return nil
		}
		n, err := number(v)
		total += n
		return err
	}
	for _, arg := range args {
		if err := add(arg); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func opSleep(ctx context.Context, op domain.OpDescriptor, args []any) (any, error) {
	ms, err := number(op.Params["ms"])
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("sleeping", "ms", ms)
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if len(args) > 0 {
		return args[0], nil
	}
	return nil, nil
}

func opFail(_ context.Context, op domain.OpDescriptor, _ []any) (any, error) {
	msg, _ := op.Params["message"].(string)
	if msg == "" {
		msg = "requested failure"
	}
	return nil, errors.New(msg)
}

// number accepts the numeric types produced by YAML decoding and by the
// gRPC wire, which carries every number as float64.
func number(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %v (%T) is not a number", domain.ErrInvalidArgument, v, v)
	}
}
