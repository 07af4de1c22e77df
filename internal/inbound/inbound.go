// Package inbound lists settlement files waiting in a directory and moves
// ingested ones to an archive directory.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// Dir is a directory of inbound settlement reports.
type Dir struct {
	Path string
}

func NewDir(path string) *Dir { return &Dir{Path: path} }

// List returns the regular, non-hidden files of the directory sorted by name.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("list inbound dir %s: %w", d.Path, err)
	}
	var out []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, filepath.Join(d.Path, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Archive moves files into Path, replacing a same-named file.
type Archive struct {
	Path string
}

func NewArchive(path string) *Archive { return &Archive{Path: path} }

// Archive moves src into the archive and returns the destination path.
func (a *Archive) Archive(src string) (string, error) {
	if err := os.MkdirAll(a.Path, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	dest := filepath.Join(a.Path, filepath.Base(src))
	err := os.Rename(src, dest)
	if err == nil {
		return dest, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("archive %s: %w", filepath.Base(src), err)
	}
	// different file systems
	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("archive %s: %w", filepath.Base(src), err)
	}
	if err := os.Remove(src); err != nil {
		return dest, fmt.Errorf("archive %s: remove source: %w", filepath.Base(src), err)
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
