package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stratus-lite/internal/domain"
)

func ids(clients []Client) []string {
	out := make([]string, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.ID())
	}
	return out
}

func TestRegistryHandlers(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(ctx, NewLocalClient("b2", []string{"xop"})))
	require.NoError(t, reg.Register(ctx, NewLocalClient("b1", []string{"edas.*"})))
	require.NoError(t, reg.Register(ctx, NewLocalClient("b3", []string{"*"})))

	assert.Equal(t, []string{"b1", "b2", "b3"}, ids(reg.Clients()))
	assert.Equal(t, []string{"b2", "b3"}, ids(reg.Handlers("xop.ave", []string{"xop"})))
	assert.Equal(t, []string{"b1", "b3"}, ids(reg.Handlers("edas.xop.ave", []string{"edas", "xop2"})))
	assert.Equal(t, []string{"edas.*"}, reg.Patterns("b1"))

	require.True(t, reg.Unregister("b3"))
	assert.False(t, reg.Unregister("b3"))
	assert.Empty(t, reg.Handlers("other.op", []string{"other"}))
}

func TestRegistryDuplicate(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(ctx, NewLocalClient("b1", []string{"a"})))
	err := reg.Register(ctx, NewLocalClient("b1", []string{"b"}))
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists))

	c, ok := reg.Client("b1")
	require.True(t, ok)
	assert.Equal(t, "b1", c.ID())
}

func TestRegistryBadPattern(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.Register(context.Background(), NewLocalClient("b1", []string{"[unterminated"}))
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}
