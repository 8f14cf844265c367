package store

import (
	"context"

	"go.uber.org/zap"

	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// FallbackBackend reads from primary and, for entities primary does not
// have, from secondary. Writes, deletes and listings use primary only.
type FallbackBackend struct {
	primary   Backend
	secondary Backend
	logger    *zap.Logger
}

// NewFallbackBackend chains two backends.
func NewFallbackBackend(primary, secondary Backend, logger *zap.Logger) *FallbackBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackBackend{primary: primary, secondary: secondary, logger: logger}
}

// Get tries primary, then secondary on NotFound.
func (f *FallbackBackend) Get(ctx context.Context, kind Kind, name string) ([]byte, error) {
	data, err := f.primary.Get(ctx, kind, name)
	if err == nil || !terrors.HasCode(err, terrors.NotFound) {
		return data, err
	}
	f.logger.Debug("entity not found locally, trying fallback",
		zap.String("kind", kind.Singular()),
		zap.String("name", name))
	return f.secondary.Get(ctx, kind, name)
}

func (f *FallbackBackend) Put(ctx context.Context, kind Kind, name string, data []byte) error {
	return f.primary.Put(ctx, kind, name, data)
}

func (f *FallbackBackend) Delete(ctx context.Context, kind Kind, name string) error {
	return f.primary.Delete(ctx, kind, name)
}

func (f *FallbackBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	return f.primary.List(ctx, kind)
}

// Exists checks primary, then secondary.
func (f *FallbackBackend) Exists(ctx context.Context, kind Kind, name string) (bool, error) {
	ok, err := f.primary.Exists(ctx, kind, name)
	if err != nil || ok {
		return ok, err
	}
	return f.secondary.Exists(ctx, kind, name)
}
