// Package opset groups requested operations into backend-bound execution
// units.
package opset

import (
	"strings"

	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/pkg/id"
)

// Op is one requested operation. It is immutable once created.
type Op struct {
	desc domain.OpDescriptor
	name string
	epas []string
}

// NewOp parses the descriptor's qualified name and fills in a missing ID
// or result identifier.
func NewOp(desc domain.OpDescriptor) (*Op, error) {
	epas, name, err := domain.ParseName(desc.Name)
	if err != nil {
		return nil, err
	}
	if desc.ID == "" {
		desc.ID = id.Prefixed("op")
	}
	if desc.Result == "" {
		desc.Result = id.ResultID()
	}
	desc.Input = append(domain.InputList(nil), desc.Input...)
	return &Op{desc: desc, name: name, epas: epas}, nil
}

func (o *Op) ID() string { return o.desc.ID }

// Name returns the bare operation name.
func (o *Op) Name() string { return o.name }

// QualifiedName returns the name as requested.
func (o *Op) QualifiedName() string { return o.desc.Name }

// Epas returns the address patterns the op is scoped to.
func (o *Op) Epas() []string { return append([]string(nil), o.epas...) }

// Address returns the dotted full name, e.g. "edas.xop.ave".
func (o *Op) Address() string {
	return strings.Join(append(o.Epas(), o.name), ".")
}

func (o *Op) Inputs() []string { return append([]string(nil), o.desc.Input...) }

func (o *Op) Outputs() []string { return []string{o.desc.Result} }

// ResultID returns the op's output identifier.
func (o *Op) ResultID() string { return o.desc.Result }

// Params returns the free-form operation parameters.
func (o *Op) Params() map[string]any { return o.desc.Params }

// Descriptor returns the completed descriptor sent to backends.
func (o *Op) Descriptor() domain.OpDescriptor {
	d := o.desc
	d.Input = o.Inputs()
	return d
}
