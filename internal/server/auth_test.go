package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apigee/apigee-templater/internal/bundle"
	"github.com/apigee/apigee-templater/internal/generate"
	"github.com/apigee/apigee-templater/internal/generate/plugins"
	"github.com/apigee/apigee-templater/internal/service"
	"github.com/apigee/apigee-templater/internal/store"
)

const testSecret = "test-secret-key-for-tokens"

func newAuthServer(t *testing.T, auth AuthConfig) *httptest.Server {
	t.Helper()
	fs := afero.NewMemMapFs()
	st := store.New(store.NewFileBackend(fs, "/data"), nil)
	codec := bundle.NewCodec(bundle.Config{Fs: fs, ScratchDir: "/scratch"}, nil)
	svc := service.New(st, codec, generate.NewPipeline(plugins.NewRegistry(), fs, nil), nil)

	config := DefaultConfig()
	config.Auth = auth
	srv, err := New(svc, config, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestAuthConfig_Enabled(t *testing.T) {
	assert.False(t, AuthConfig{}.Enabled())
	assert.True(t, AuthConfig{JWTSecret: "s"}.Enabled())
	assert.True(t, AuthConfig{Users: map[string]string{"a": "h"}}.Enabled())
}

func TestAuthenticator_TokenRoundTrip(t *testing.T) {
	a := NewAuthenticator(AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour})

	token, err := a.IssueToken("alice")
	require.NoError(t, err)
	subject, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	other := NewAuthenticator(AuthConfig{JWTSecret: "another-secret"})
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthenticator_RejectsExpiredAndForeignTokens(t *testing.T) {
	a := NewAuthenticator(AuthConfig{JWTSecret: testSecret})

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	signed, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = a.ValidateToken(signed)
	assert.Error(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err = foreign.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = a.ValidateToken(signed)
	assert.Error(t, err)

	_, err = NewAuthenticator(AuthConfig{}).IssueToken("alice")
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPassword("s3cret", hash))
	assert.False(t, CheckPassword("wrong", hash))

	_, err = HashPassword("")
	assert.Error(t, err)

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}
	_, err = HashPassword(string(long))
	assert.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	ts := newAuthServer(t, AuthConfig{
		JWTSecret: testSecret,
		Users:     map[string]string{"admin": hash},
	})

	resp := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/templates", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, resp).Error)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/templates", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, ts.URL+"/token", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var issued struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expiresIn"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))
	assert.NotEmpty(t, issued.Token)
	assert.Equal(t, 86400, issued.ExpiresIn)

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/templates", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/templates", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token "+issued.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIssueToken_Disabled(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodPost, ts.URL+"/token", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
