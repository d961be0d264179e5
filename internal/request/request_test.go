package request

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stratus-lite/internal/domain"
)

func TestLoadFormats(t *testing.T) {
	for _, name := range []string{"fanin.yaml", "fanin.json", "fanin.hcl"} {
		t.Run(name, func(t *testing.T) {
			req, err := Load(filepath.Join("testdata", name))
			require.NoError(t, err)

			assert.Equal(t, "fanin", req.ID)
			assert.Equal(t, "ci", req.ClientID)
			assert.EqualValues(t, 3, req.InputSources["seed"])
			require.Len(t, req.Ops, 3)

			a, b, c := req.Ops[0], req.Ops[1], req.Ops[2]
			assert.Equal(t, "a", a.ID)
			assert.Equal(t, "math:const", a.Name)
			assert.Equal(t, domain.InputList{"seed"}, a.Input)
			assert.Equal(t, "r1", a.Result)
			assert.EqualValues(t, 1, a.Params["value"])

			assert.Empty(t, b.Input)
			assert.EqualValues(t, 2, b.Params["value"])

			assert.Equal(t, domain.InputList{"r1", "r2"}, c.Input)
			assert.Empty(t, c.Result)
			assert.Empty(t, c.Params)
		})
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAssignsID(t *testing.T) {
	req, err := Load(writeFile(t, "r.yaml", "ops:\n  - name: a:x\n"))
	require.NoError(t, err)
	assert.Regexp(t, `^req-`, req.ID)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown extension", "r.toml", "ops = []"},
		{"no ops", "r.yaml", "id: x\n"},
		{"missing name", "r.yaml", "ops:\n  - result: r1\n"},
		{"malformed name", "r.yaml", "ops:\n  - name: 'a::x'\n"},
		{"duplicate id", "r.yaml", "ops:\n  - {id: a, name: 'a:x'}\n  - {id: a, name: 'a:y'}\n"},
		{"bad input type", "r.yaml", "ops:\n  - name: a:x\n    input: {k: v}\n"},
		{"hcl syntax", "r.hcl", "op \"a:x\" {"},
		{"hcl unknown attr", "r.hcl", "op \"a:x\" {\n  colour = 1\n}\n"},
		{"hcl params not object", "r.hcl", "op \"a:x\" {\n  params = 3\n}\n"},
		{"hcl input not strings", "r.hcl", "op \"a:x\" {\n  input = [1]\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
