// Package request loads workflow requests from YAML, JSON or HCL files.
package request

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/example/stratus-lite/internal/domain"
	"github.com/example/stratus-lite/pkg/id"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a request file, choosing the decoder by extension, and
// validates the result. A request without an id is assigned one.
func Load(path string) (*domain.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	var req *domain.Request
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		req, err = Decode(data)
	case ".hcl":
		req, err = DecodeHCL(path, data)
	default:
		return nil, fmt.Errorf("%w: unsupported request format %q", domain.ErrInvalidArgument, ext)
	}
	if err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = id.Prefixed("req")
	}
	if err := Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Decode parses a YAML or JSON request document. Keys of an op other than
// id, name, input and result are collected into its params.
func Decode(data []byte) (*domain.Request, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var req domain.Request
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: decode request: %v", domain.ErrInvalidArgument, err)
	}
	return &req, nil
}

// Validate checks struct constraints, op names and id uniqueness.
func Validate(req *domain.Request) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", domain.ErrInvalidArgument)
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	ids := make(map[string]int, len(req.Ops))
	for i, op := range req.Ops {
		if _, _, err := domain.ParseName(op.Name); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
		if op.ID == "" {
			continue
		}
		if prev, ok := ids[op.ID]; ok {
			return fmt.Errorf("%w: ops %d and %d share id %q", domain.ErrInvalidArgument, prev, i, op.ID)
		}
		ids[op.ID] = i
	}
	return nil
}
