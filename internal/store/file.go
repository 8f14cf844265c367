package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const fileExt = ".json"

// FileBackend keeps one JSON file per entity below <root>/<kind>/.
type FileBackend struct {
	fs   afero.Fs
	root string
}

// NewFileBackend creates a file backend rooted at root. A nil fs uses the
// OS filesystem.
func NewFileBackend(fs afero.Fs, root string) *FileBackend {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileBackend{fs: fs, root: root}
}

func (b *FileBackend) path(kind Kind, name string) (string, error) {
	if err := ValidateName(kind, name); err != nil {
		return "", err
	}
	return filepath.Join(b.root, string(kind), name+fileExt), nil
}

// Get reads <root>/<kind>/<name>.json.
func (b *FileBackend) Get(ctx context.Context, kind Kind, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.path(kind, name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(kind, name)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Put writes <root>/<kind>/<name>.json, creating the directory.
func (b *FileBackend) Put(ctx context.Context, kind Kind, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.path(kind, name)
	if err != nil {
		return err
	}
	if err := b.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	return afero.WriteFile(b.fs, path, data, 0o644)
}

// Delete removes the entity file.
func (b *FileBackend) Delete(ctx context.Context, kind Kind, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.path(kind, name)
	if err != nil {
		return err
	}
	if ok, _ := afero.Exists(b.fs, path); !ok {
		return notFound(kind, name)
	}
	return b.fs.Remove(path)
}

// List returns the names of the .json files of a kind.
func (b *FileBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(b.root, string(kind))
	entries, err := afero.ReadDir(b.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Exists checks for the entity file.
func (b *FileBackend) Exists(ctx context.Context, kind Kind, name string) (bool, error) {
	path, err := b.path(kind, name)
	if err != nil {
		return false, err
	}
	return afero.Exists(b.fs, path)
}
