package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNeedsUserGrant means the scoped backup folder is not granted, or the
	// grant no longer allows writing. The caller should show the folder chooser.
	ErrNeedsUserGrant = errors.New("storage: backup folder access must be granted")
	// ErrPermissionDenied means the legacy storage permission is not held.
	ErrPermissionDenied = errors.New("storage: permission denied")
	// ErrNotWritable means a location exists but cannot be written.
	ErrNotWritable = errors.New("storage: location not writable")
)

// Handle is a validated capability to read and write the backup location.
type Handle interface {
	// Location is the user-facing description (a path or a tree URI).
	Location() string
	// Dir is the filesystem directory backing the handle.
	Dir() string
	// List returns the names of the direct children in directory order.
	List(ctx context.Context) ([]string, error)
}

// DirectPath is a plain filesystem directory (legacy storage).
type DirectPath struct {
	path string
}

func NewDirectPath(path string) DirectPath { return DirectPath{path: filepath.Clean(path)} }

func (d DirectPath) Location() string { return d.path }
func (d DirectPath) Dir() string      { return d.path }
func (d DirectPath) List(ctx context.Context) ([]string, error) {
	return listDir(ctx, d.path)
}

// TreeHandle is a user-granted folder persisted as a file:// URI (scoped storage).
type TreeHandle struct {
	uri string
	dir string
}

// ParseTreeURI decodes a persisted grant.
func ParseTreeURI(raw string) (TreeHandle, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TreeHandle{}, fmt.Errorf("empty tree uri")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return TreeHandle{}, fmt.Errorf("parse tree uri: %w", err)
	}
	if u.Scheme != "file" {
		return TreeHandle{}, fmt.Errorf("tree uri scheme %q not supported", u.Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return TreeHandle{}, fmt.Errorf("tree uri host %q not supported", u.Host)
	}
	if u.Path == "" || !filepath.IsAbs(filepath.FromSlash(u.Path)) {
		return TreeHandle{}, fmt.Errorf("tree uri %q has no absolute path", raw)
	}
	return TreeHandle{uri: raw, dir: filepath.Clean(filepath.FromSlash(u.Path))}, nil
}

// TreeURI encodes dir as a grant URI.
func TreeURI(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

func (t TreeHandle) Location() string { return t.uri }
func (t TreeHandle) Dir() string      { return t.dir }
func (t TreeHandle) List(ctx context.Context) ([]string, error) {
	return listDir(ctx, t.dir)
}

// listDir returns the entries in os.ReadDir order. A missing directory
// lists as empty. In-flight export temp files are skipped.
func listDir(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if isExportTemp(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// isExportTemp matches the ".<name>.zip.*.tmp" files an export writes before
// renaming them into place.
func isExportTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// checkWritable confirms dir exists, is a directory, and accepts writes.
func checkWritable(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotWritable, dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotWritable, dir)
	}
	if err := accessWrite(dir); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotWritable, dir, err)
	}
	return nil
}
