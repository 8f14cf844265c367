// Package bundle converts between packaged proxy archives (zip files holding
// the apiproxy/ or sharedflowbundle/ directory layout) and the document model.
package bundle

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// Bundle root directories.
const (
	ProxyDir      = "apiproxy"
	SharedFlowDir = "sharedflowbundle"
)

// Codec unpacks and packs archives through exclusive scratch directories.
type Codec struct {
	fs     afero.Fs
	config Config
	logger *zap.Logger
}

// Config holds codec configuration
type Config struct {
	// Fs is the filesystem scratch directories are created on
	Fs afero.Fs
	// ScratchDir is the parent of per-operation scratch directories
	ScratchDir string
	// ImportParameters turns properties resources into template parameters
	ImportParameters bool
}

// DefaultConfig returns a codec configuration on the OS filesystem
func DefaultConfig() Config {
	return Config{
		Fs:               afero.NewOsFs(),
		ScratchDir:       filepath.Join(os.TempDir(), "templater"),
		ImportParameters: true,
	}
}

// NewCodec creates a codec. A nil logger disables logging.
func NewCodec(config Config, logger *zap.Logger) *Codec {
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	if config.ScratchDir == "" {
		config.ScratchDir = DefaultConfig().ScratchDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{fs: config.Fs, config: config, logger: logger}
}

// Fs returns the filesystem the codec works on.
func (c *Codec) Fs() afero.Fs {
	return c.fs
}

func (c *Codec) scratch() (string, error) {
	dir := filepath.Join(c.config.ScratchDir, uuid.NewString())
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return dir, nil
}

// Unpack decodes an archive into a template called name.
func (c *Codec) Unpack(ctx context.Context, name string, archive []byte) (*document.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := c.scratch()
	if err != nil {
		return nil, err
	}
	defer c.removeScratch(dir)

	if err := ExtractArchive(c.fs, archive, dir); err != nil {
		return nil, err
	}
	root, err := locateRoot(c.fs, dir)
	if err != nil {
		return nil, err
	}
	return c.ReadDir(root, name)
}

// Pack encodes a template into an archive.
func (c *Codec) Pack(ctx context.Context, t *document.Template) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := c.scratch()
	if err != nil {
		return nil, err
	}
	defer c.removeScratch(dir)

	if err := c.WriteDir(t, dir); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := ZipDir(c.fs, dir, &buf); err != nil {
		return nil, err
	}
	c.logger.Debug("packed bundle",
		zap.String("template", t.Name),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (c *Codec) removeScratch(dir string) {
	if err := c.fs.RemoveAll(dir); err != nil {
		c.logger.Warn("failed to remove scratch directory", zap.String("dir", dir), zap.Error(err))
	}
}

// locateRoot finds the directory holding apiproxy/ or sharedflowbundle/,
// either the extraction directory itself or a single wrapping folder.
func locateRoot(fs afero.Fs, dir string) (string, error) {
	if hasBundle(fs, dir) {
		return dir, nil
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() && hasBundle(fs, filepath.Join(dir, e.Name())) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", terrors.NewMalformedBundle("", "archive has no apiproxy or sharedflowbundle directory")
}

func hasBundle(fs afero.Fs, dir string) bool {
	for _, d := range []string{ProxyDir, SharedFlowDir} {
		if ok, _ := afero.DirExists(fs, filepath.Join(dir, d)); ok {
			return true
		}
	}
	return false
}
