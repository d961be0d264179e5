package request

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/example/stratus-lite/internal/domain"
)

// hclFile is the top-level structure of an HCL request file:
//
//	request {
//	  id        = "r1"
//	  client_id = "ci"
//	}
//
//	op "math:add" {
//	  id     = "a"
//	  input  = ["x", "y"]
//	  result = "sum"
//	  params = { scale = 2 }
//	}
type hclFile struct {
	Request *hclRequest `hcl:"request,block"`
	Ops     []*hclOp    `hcl:"op,block"`
}

type hclRequest struct {
	ID           string         `hcl:"id,optional"`
	ClientID     string         `hcl:"client_id,optional"`
	Domains      hcl.Expression `hcl:"domains,optional"`
	InputSources hcl.Expression `hcl:"input_sources,optional"`
}

type hclOp struct {
	Name   string         `hcl:"name,label"`
	ID     string         `hcl:"id,optional"`
	Input  hcl.Expression `hcl:"input,optional"`
	Result string         `hcl:"result,optional"`
	Params hcl.Expression `hcl:"params,optional"`
}

// DecodeHCL parses an HCL request document. filename is used in diagnostics.
func DecodeHCL(filename string, data []byte) (*domain.Request, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: parse %s: %s", domain.ErrInvalidArgument, filename, diags.Error())
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("%w: decode %s: %s", domain.ErrInvalidArgument, filename, diags.Error())
	}

	req := &domain.Request{}
	if r := parsed.Request; r != nil {
		req.ID = r.ID
		req.ClientID = r.ClientID
		var err error
		if req.Domains, err = exprMap(r.Domains); err != nil {
			return nil, fmt.Errorf("domains: %w", err)
		}
		if req.InputSources, err = exprMap(r.InputSources); err != nil {
			return nil, fmt.Errorf("input_sources: %w", err)
		}
	}

	for _, o := range parsed.Ops {
		op := domain.OpDescriptor{ID: o.ID, Name: o.Name, Result: o.Result}
		input, err := exprInput(o.Input)
		if err != nil {
			return nil, fmt.Errorf("op %q input: %w", o.Name, err)
		}
		op.Input = input
		if op.Params, err = exprMap(o.Params); err != nil {
			return nil, fmt.Errorf("op %q params: %w", o.Name, err)
		}
		req.Ops = append(req.Ops, op)
	}
	return req, nil
}

func exprInput(expr hcl.Expression) (domain.InputList, error) {
	v, err := exprValue(expr)
	if err != nil || v == nil {
		return nil, err
	}
	switch t := v.(type) {
	case string:
		return domain.ParseInputList(t), nil
	case []any:
		out := make(domain.InputList, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: input items must be strings", domain.ErrInvalidArgument)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: input must be a string or list", domain.ErrInvalidArgument)
	}
}

func exprMap(expr hcl.Expression) (map[string]any, error) {
	v, err := exprValue(expr)
	if err != nil || v == nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object", domain.ErrInvalidArgument)
	}
	return m, nil
}

// exprValue evaluates a static expression and converts it to plain Go
// values through its JSON form. A null expression yields nil.
func exprValue(expr hcl.Expression) (any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, diags.Error())
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("%w: value is not known statically", domain.ErrInvalidArgument)
	}
	raw, err := ctyjson.Marshal(val, cty.DynamicPseudoType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	var wrapped struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Value, nil
}
