package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Register("quota", "<Quota/>")
	require.NoError(t, err)

	_, err = registry.Register("quota", "<Quota/>")
	assert.Error(t, err, "duplicate names are rejected")

	_, err = registry.Register("broken", "{{")
	assert.Error(t, err)
	assert.False(t, registry.Exists("broken"))
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(NewEngine())
	registry.MustRegister("b", `<B>{{.}}</B>`)
	registry.MustRegister("a", `<A/>`)

	assert.Equal(t, []string{"a", "b"}, registry.Names())
	assert.True(t, registry.Exists("a"))

	got, err := registry.Render("b", "x")
	require.NoError(t, err)
	assert.Contains(t, got, "<B>x</B>")

	_, err = registry.Get("missing")
	assert.Error(t, err)
	_, err = registry.Render("missing", nil)
	assert.Error(t, err)

	require.NoError(t, registry.Unregister("a"))
	assert.False(t, registry.Exists("a"))
	assert.Error(t, registry.Unregister("a"))
}
