package watch

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/generate"
	"github.com/apigee/apigee-templater/internal/generate/plugins"
)

const petsInput = `
name: pets
endpoints:
  - name: default
    basePath: /pets
    target:
      name: default
      url: https://pets.example.com
`

const ordersInput = `{
  "name": "orders",
  "endpoints": [{"name": "default", "basePath": "/orders", "target": {"name": "default", "url": "https://orders.example.com"}}]
}`

func newTestRegenerator(t *testing.T) (*Regenerator, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/pets.yaml", []byte(petsInput), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/orders.json", []byte(ordersInput), 0o644))

	pipeline := generate.NewPipeline(plugins.NewRegistry(), fs, nil)
	r := NewRegenerator(fs, pipeline, []string{"/work/pets.yaml", "/work/./orders.json"}, "/out", generate.Options{}, nil)
	return r, fs
}

func TestRegenerator_ChangedInput(t *testing.T) {
	r, fs := newTestRegenerator(t)

	result, err := r.Regenerate(context.Background(), []string{"/work/pets.yaml"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"/work/pets.yaml"}, result.Inputs)
	assert.Equal(t, []string{"/out/pets.zip"}, result.Bundles)

	exists, _ := afero.Exists(fs, "/out/pets.zip")
	assert.True(t, exists)
	exists, _ = afero.Exists(fs, "/out/orders.zip")
	assert.False(t, exists)
}

func TestRegenerator_OtherFileRebuildsAll(t *testing.T) {
	r, _ := newTestRegenerator(t)

	result, err := r.Regenerate(context.Background(), []string{"/work/pets.yaml", "/work/shared/params.json"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"/work/pets.yaml", "/work/orders.json"}, result.Inputs)
	assert.ElementsMatch(t, []string{"/out/pets.zip", "/out/orders.zip"}, result.Bundles)
}

func TestRegenerator_NoChanges(t *testing.T) {
	r, _ := newTestRegenerator(t)

	result, err := r.Regenerate(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Inputs)
}

func TestRegenerator_Failures(t *testing.T) {
	r, fs := newTestRegenerator(t)
	require.NoError(t, afero.WriteFile(fs, "/work/pets.yaml", []byte(petsInput+"profile: missing\n"), 0o644))

	result, err := r.Regenerate(context.Background(), []string{"/work/pets.yaml"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Contains(t, result.Errors, "/work/pets.yaml")
	assert.True(t, terrors.HasCode(result.Errors["/work/pets.yaml"], terrors.UnknownProfile))

	err = r.OnChange(context.Background())([]string{"/work/pets.yaml"})
	assert.Error(t, err)

	require.NoError(t, fs.Remove("/work/orders.json"))
	result, err = r.Regenerate(context.Background(), []string{"/work/orders.json"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors, "/work/orders.json")
}

func TestRegenerator_Cancelled(t *testing.T) {
	r, _ := newTestRegenerator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Regenerate(ctx, []string{"/work/pets.yaml"})
	assert.ErrorIs(t, err, context.Canceled)
}
