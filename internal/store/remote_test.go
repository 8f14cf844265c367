package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/apigee/apigee-templater/internal/errors"
)

func newRemoteServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/repository/templates/SimpleProxy-v1.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"SimpleProxy-v1"}`))
	})
	mux.HandleFunc("/repository/features/broken.json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteBackend(t *testing.T) {
	srv := newRemoteServer(t)
	b := NewRemoteBackend(RemoteConfig{BaseURL: srv.URL + "/repository/"}, srv.Client())
	ctx := context.Background()

	data, err := b.Get(ctx, KindTemplate, "SimpleProxy-v1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"SimpleProxy-v1"}`, string(data))

	_, err = b.Get(ctx, KindTemplate, "missing")
	assert.True(t, terrors.HasCode(err, terrors.NotFound))

	_, err = b.Get(ctx, KindFeature, "broken")
	require.Error(t, err)
	assert.False(t, terrors.HasCode(err, terrors.NotFound))

	ok, err := b.Exists(ctx, KindTemplate, "SimpleProxy-v1")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, b.Put(ctx, KindTemplate, "x", nil), ErrReadOnly)
	assert.ErrorIs(t, b.Delete(ctx, KindTemplate, "x"), ErrReadOnly)
}

func TestFallbackBackend(t *testing.T) {
	srv := newRemoteServer(t)
	local := NewFileBackend(afero.NewMemMapFs(), "/data")
	b := NewFallbackBackend(local, NewRemoteBackend(RemoteConfig{BaseURL: srv.URL + "/repository"}, srv.Client()), nil)
	ctx := context.Background()

	data, err := b.Get(ctx, KindTemplate, "SimpleProxy-v1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "SimpleProxy-v1")

	require.NoError(t, b.Put(ctx, KindTemplate, "SimpleProxy-v1", []byte(`{"name":"SimpleProxy-v1","uid":"local"}`)))
	data, err = b.Get(ctx, KindTemplate, "SimpleProxy-v1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "local")

	ok, err := b.Exists(ctx, KindTemplate, "SimpleProxy-v1")
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := b.List(ctx, KindTemplate)
	require.NoError(t, err)
	assert.Equal(t, []string{"SimpleProxy-v1"}, names)

	_, err = b.Get(ctx, KindFeature, "nowhere")
	assert.True(t, terrors.HasCode(err, terrors.NotFound))
}
