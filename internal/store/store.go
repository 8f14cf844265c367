// Package store persists templates and features. Backends store raw JSON
// documents keyed by kind and name; Store adds typed access on top.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// Kind is the entity collection a document belongs to.
type Kind string

const (
	KindTemplate Kind = "templates"
	KindFeature  Kind = "features"
)

// Singular returns the entity name used in errors.
func (k Kind) Singular() string {
	switch k {
	case KindTemplate:
		return "template"
	case KindFeature:
		return "feature"
	}
	return string(k)
}

// Backend defines the interface for all storage backends. Get and Delete
// return a NotFound error for missing entities.
type Backend interface {
	// Get retrieves a stored document
	Get(ctx context.Context, kind Kind, name string) ([]byte, error)

	// Put stores a document, replacing any previous version
	Put(ctx context.Context, kind Kind, name string, data []byte) error

	// Delete removes a document
	Delete(ctx context.Context, kind Kind, name string) error

	// List returns the stored names of a kind in sorted order
	List(ctx context.Context, kind Kind) ([]string, error)

	// Exists checks if a document is stored
	Exists(ctx context.Context, kind Kind, name string) (bool, error)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ErrInvalidName is returned for names that fail ValidateName.
var ErrInvalidName = errors.New("invalid name")

// ValidateName rejects names that cannot be used as a storage key.
func ValidateName(kind Kind, name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind.Singular(), name)
	}
	return nil
}

func notFound(kind Kind, name string) error {
	return terrors.NewNotFound(kind.Singular(), name)
}

// Store reads and writes templates and features through a backend.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// New creates a store. A nil logger disables logging.
func New(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// GetTemplate loads a template.
func (s *Store) GetTemplate(ctx context.Context, name string) (*document.Template, error) {
	data, err := s.backend.Get(ctx, KindTemplate, name)
	if err != nil {
		return nil, err
	}
	t, err := document.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("stored template %s: %w", name, err)
	}
	return t, nil
}

// SaveTemplate stores t under its name.
func (s *Store) SaveTemplate(ctx context.Context, t *document.Template) error {
	return s.put(ctx, KindTemplate, t.Name, t)
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, name string) error {
	return s.backend.Delete(ctx, KindTemplate, name)
}

// ListTemplates returns the stored template names.
func (s *Store) ListTemplates(ctx context.Context) ([]string, error) {
	return s.backend.List(ctx, KindTemplate)
}

// TemplateExists reports whether a template is stored.
func (s *Store) TemplateExists(ctx context.Context, name string) (bool, error) {
	return s.backend.Exists(ctx, KindTemplate, name)
}

// GetFeature loads a feature.
func (s *Store) GetFeature(ctx context.Context, name string) (*document.Feature, error) {
	data, err := s.backend.Get(ctx, KindFeature, name)
	if err != nil {
		return nil, err
	}
	f, err := document.DecodeFeature(data)
	if err != nil {
		return nil, fmt.Errorf("stored feature %s: %w", name, err)
	}
	return f, nil
}

// SaveFeature stores f under its name.
func (s *Store) SaveFeature(ctx context.Context, f *document.Feature) error {
	return s.put(ctx, KindFeature, f.Name, f)
}

// DeleteFeature removes a feature.
func (s *Store) DeleteFeature(ctx context.Context, name string) error {
	return s.backend.Delete(ctx, KindFeature, name)
}

// ListFeatures returns the stored feature names.
func (s *Store) ListFeatures(ctx context.Context) ([]string, error) {
	return s.backend.List(ctx, KindFeature)
}

// FeatureExists reports whether a feature is stored.
func (s *Store) FeatureExists(ctx context.Context, name string) (bool, error) {
	return s.backend.Exists(ctx, KindFeature, name)
}

func (s *Store) put(ctx context.Context, kind Kind, name string, v any) error {
	if err := ValidateName(kind, name); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", kind.Singular(), name, err)
	}
	if err := s.backend.Put(ctx, kind, name, data); err != nil {
		return err
	}
	s.logger.Debug("stored entity",
		zap.String("kind", kind.Singular()),
		zap.String("name", name),
		zap.Int("bytes", len(data)))
	return nil
}
