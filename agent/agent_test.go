package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(context.Context, *Request, *Response, *Context) (any, error) {
	return nil, nil
}

func testRegistry(t *testing.T, configs ...Config) *Registry {
	t.Helper()
	regs := make([]Registration, len(configs))
	for i, cfg := range configs {
		regs[i] = Registration{Config: cfg, Handler: noopHandler}
	}
	r, err := NewRegistry(regs)
	require.NoError(t, err)
	return r
}

func TestNewRegistryValidation(t *testing.T) {
	_, err := NewRegistry([]Registration{{Config: Config{Name: "no-id"}, Handler: noopHandler}})
	assert.Error(t, err)

	_, err = NewRegistry([]Registration{{Config: Config{ID: "a"}}})
	assert.Error(t, err)

	_, err = NewRegistry([]Registration{
		{Config: Config{ID: "a"}, Handler: noopHandler},
		{Config: Config{ID: "a"}, Handler: noopHandler},
	})
	assert.Error(t, err)
}

func TestRegistryResolve(t *testing.T) {
	r := testRegistry(t,
		Config{ID: "agent_1", Name: "alpha"},
		Config{ID: "agent_2", Name: "beta"},
		Config{ID: "agent_3", Name: "beta"},
	)

	got, err := r.Resolve(Selector{ID: "agent_2"})
	require.NoError(t, err)
	assert.Equal(t, "agent_2", got.Config.ID)

	// Name matches scan in registration order; first wins.
	got, err = r.Resolve(Selector{Name: "beta"})
	require.NoError(t, err)
	assert.Equal(t, "agent_2", got.Config.ID)

	// ID takes precedence over name.
	got, err = r.Resolve(Selector{ID: "agent_1", Name: "beta"})
	require.NoError(t, err)
	assert.Equal(t, "agent_1", got.Config.ID)

	// An unknown id can still fall back to a name match.
	got, err = r.Resolve(Selector{ID: "missing", Name: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, "agent_1", got.Config.ID)
}

func TestRegistryResolveErrors(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Resolve(Selector{})
	assert.ErrorIs(t, err, ErrInvalidSelector)

	_, err = r.Resolve(Selector{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryConfigs(t *testing.T) {
	r := testRegistry(t,
		Config{ID: "b", Name: "second"},
		Config{ID: "a", Name: "first"},
	)
	configs := r.Configs()
	require.Len(t, configs, 2)
	assert.Equal(t, "b", configs[0].ID)
	assert.Equal(t, "a", configs[1].ID)
	assert.Equal(t, 2, r.Len())
}

func TestRequestValidate(t *testing.T) {
	req := NewRequest("manual", nil, "text/plain", nil)
	assert.NoError(t, req.Validate())

	req = NewRequest("", nil, "text/plain", nil)
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
}

func TestRequestAccessors(t *testing.T) {
	md := map[string]any{"source": "webhook"}
	req := NewRequest("webhook", md, "application/json", nil)
	assert.Equal(t, "webhook", req.Trigger())
	assert.Equal(t, "webhook", req.Get("source"))
	assert.Nil(t, req.Get("absent"))
	assert.Equal(t, "application/json", req.Data().ContentType())
}
