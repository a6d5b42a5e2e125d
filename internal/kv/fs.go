package kv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileExt is appended to every key to form its file name.
const FileExt = ".json"

var keyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// FS implements Backend with one file per key inside a directory. Writes are
// atomic per key (tmp file, fsync, rename) but there is no compare-and-set.
type FS struct {
	root string // absolute path to the ledger directory
}

// NewFS creates a new FS backend rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("kv: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("kv: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("kv: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute ledger directory.
func (f *FS) Root() string { return f.root }

// KeyFromPath maps a file path inside the ledger directory back to its key.
// ok is false for temp files and anything that is not a key file.
func KeyFromPath(path string) (key string, ok bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, FileExt) {
		return "", false
	}
	key = strings.TrimSuffix(name, FileExt)
	return key, keyRe.MatchString(key)
}

func (f *FS) keyPath(key string) (string, error) {
	if !keyRe.MatchString(key) {
		return "", fmt.Errorf("kv: invalid key %q", key)
	}
	return filepath.Join(f.root, key+FileExt), nil
}

// Get returns the file contents for key, or nil when no file exists.
func (f *FS) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.keyPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv: read %s: %w", key, err)
	}
	return data, nil
}

// Set atomically writes value: tmp file → fsync → rename.
func (f *FS) Set(_ context.Context, key string, value []byte) error {
	p, err := f.keyPath(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".parkwatch-tmp-*")
	if err != nil {
		return fmt.Errorf("kv: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		return fmt.Errorf("kv: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("kv: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kv: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("kv: rename: %w", err)
	}
	success = true
	return nil
}

// Available reports whether the ledger directory is still present.
func (f *FS) Available(context.Context) bool {
	info, err := os.Stat(f.root)
	return err == nil && info.IsDir()
}

var _ Backend = (*FS)(nil)
