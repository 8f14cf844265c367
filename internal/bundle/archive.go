package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// ExtractArchive writes every entry of a zip archive below dir. Entries
// that would land outside dir are rejected.
func ExtractArchive(fs afero.Fs, archive []byte, dir string) error {
	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return terrors.NewMalformedBundle("", "archive is not a zip file").WithCause(err)
	}
	for _, f := range r.File {
		target, err := SafeJoin(dir, f.Name)
		if err != nil {
			return terrors.NewMalformedBundle(f.Name, "archive entry escapes the bundle").WithCause(err)
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(fs, f, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(fs afero.Fs, f *zip.File, target string) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// ZipDir archives every file below dir using paths relative to dir.
func ZipDir(fs afero.Fs, dir string, w io.Writer) error {
	zw := zip.NewWriter(w)
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := fs.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(entry, src)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to archive %s: %w", dir, err)
	}
	return zw.Close()
}

// SafeJoin joins name below dir and rejects absolute or escaping paths.
func SafeJoin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid path %q", name)
	}
	clean := filepath.Clean(dir)
	target := filepath.Join(clean, filepath.FromSlash(name))
	if target != clean && !strings.HasPrefix(target, clean+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes %s", name, dir)
	}
	return target, nil
}
