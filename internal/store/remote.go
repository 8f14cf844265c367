package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrReadOnly is returned by writes to a read-only backend.
var ErrReadOnly = errors.New("backend is read-only")

// RemoteConfig configures the remote document source.
type RemoteConfig struct {
	// BaseURL is the root documents are fetched from
	BaseURL string
	// Timeout bounds each request
	Timeout time.Duration
}

// DefaultRemoteConfig points at the public template repository.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL: "https://raw.githubusercontent.com/apigee/apigee-templater/refs/heads/main/repository",
		Timeout: 10 * time.Second,
	}
}

// RemoteBackend fetches <base>/<kind>/<name>.json over HTTP. It cannot
// list or write.
type RemoteBackend struct {
	client  *http.Client
	baseURL string
}

// NewRemoteBackend creates a remote backend. A nil client gets one with
// the configured timeout.
func NewRemoteBackend(config RemoteConfig, client *http.Client) *RemoteBackend {
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &RemoteBackend{client: client, baseURL: strings.TrimSuffix(config.BaseURL, "/")}
}

func (r *RemoteBackend) url(kind Kind, name string) string {
	return fmt.Sprintf("%s/%s/%s%s", r.baseURL, kind, name, fileExt)
}

// Get downloads a document. 404 maps to NotFound.
func (r *RemoteBackend) Get(ctx context.Context, kind Kind, name string) ([]byte, error) {
	if err := ValidateName(kind, name); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(kind, name), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s: %w", kind.Singular(), name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, notFound(kind, name)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("failed to fetch %s %s: %s", kind.Singular(), name, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Put is not supported.
func (r *RemoteBackend) Put(context.Context, Kind, string, []byte) error {
	return ErrReadOnly
}

// Delete is not supported.
func (r *RemoteBackend) Delete(context.Context, Kind, string) error {
	return ErrReadOnly
}

// List returns nothing; the remote source has no index.
func (r *RemoteBackend) List(context.Context, Kind) ([]string, error) {
	return []string{}, nil
}

// Exists checks for the document with a HEAD request.
func (r *RemoteBackend) Exists(ctx context.Context, kind Kind, name string) (bool, error) {
	if err := ValidateName(kind, name); err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.url(kind, name), nil)
	if err != nil {
		return false, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
