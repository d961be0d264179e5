package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Request is a parsed workflow request: a flat list of ops whose data
// dependencies are inferred from their input and result identifiers.
type Request struct {
	ID       string         `json:"id" yaml:"id"`
	ClientID string         `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Ops      []OpDescriptor `json:"ops" yaml:"ops" validate:"required,min=1,dive"`

	// Passed through unchanged to whichever backend runs the ops.
	Domains      map[string]any `json:"domains,omitempty" yaml:"domains,omitempty"`
	InputSources map[string]any `json:"input_sources,omitempty" yaml:"input_sources,omitempty"`
}

// OpDescriptor describes one requested operation. Name is qualified as
// "<epa>...:<op>" or "<epa>....<op>".
type OpDescriptor struct {
	ID     string    `json:"id,omitempty" yaml:"id,omitempty"`
	Name   string    `json:"name" yaml:"name" validate:"required"`
	Input  InputList `json:"input,omitempty" yaml:"input,omitempty"`
	Result string    `json:"result,omitempty" yaml:"result,omitempty"`

	// Params holds every other key of the descriptor.
	Params map[string]any `json:"params,omitempty" yaml:",inline"`
}

// Clone returns a copy of the request that shares no slices with r.
// Domains, InputSources and Params maps are shared since they are never
// mutated after parsing.
func (r *Request) Clone() *Request {
	out := *r
	out.Ops = make([]OpDescriptor, len(r.Ops))
	for i, op := range r.Ops {
		op.Input = append(InputList(nil), op.Input...)
		out.Ops[i] = op
	}
	return &out
}

// ParseName splits a qualified op name into its address patterns and the
// bare operation name. Colons take precedence over dots.
func ParseName(name string) (epas []string, op string, err error) {
	sep := "."
	if strings.Contains(name, ":") {
		sep = ":"
	}
	tokens := strings.Split(name, sep)
	for _, tok := range tokens {
		if strings.TrimSpace(tok) == "" {
			return nil, "", fmt.Errorf("%w: malformed op name %q", ErrInvalidArgument, name)
		}
	}
	return tokens[:len(tokens)-1], tokens[len(tokens)-1], nil
}

// InputList is a list of data identifiers. It decodes from either a list
// or a comma-separated string.
type InputList []string

// ParseInputList splits a comma-separated identifier list, dropping blanks.
func ParseInputList(s string) InputList {
	var out InputList
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (l *InputList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = ParseInputList(value.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("%w: input must be a string or list (line %d)", ErrInvalidArgument, value.Line)
	}
}

func (l *InputList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = ParseInputList(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("%w: input must be a string or list", ErrInvalidArgument)
	}
	*l = items
	return nil
}

// TaskResult is the payload a backend returns for one submitted unit.
// Data is keyed by output identifier.
type TaskResult struct {
	TaskID string         `json:"task_id,omitempty"`
	Data   map[string]any `json:"data"`
}

// Value returns the value produced for the given data identifier.
func (r *TaskResult) Value(dataID string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.Data[dataID]
	return v, ok
}

// MergeResults flattens several results into one identifier-to-value map.
// Later results win on conflicting identifiers.
func MergeResults(results []*TaskResult) map[string]any {
	out := make(map[string]any)
	for _, r := range results {
		if r == nil {
			continue
		}
		for k, v := range r.Data {
			out[k] = v
		}
	}
	return out
}
