// Package security confines file access to one directory.
//
// Sync folders and backup destinations are user supplied; every name read
// or written below them goes through a PathValidator backed by os.Root, so
// a record id or file name can never reach outside the directory.
package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes directory")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// PathValidator performs file operations confined to a root directory.
type PathValidator struct {
	root *os.Root
	dir  string
}

// New opens dir as the confinement root, creating it with 0700 if needed.
func New(dir string) (*PathValidator, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory root: %w", err)
	}
	return &PathValidator{root: root, dir: absPath}, nil
}

// Close releases the root handle.
func (pv *PathValidator) Close() error {
	if pv.root != nil {
		return pv.root.Close()
	}
	return nil
}

// Dir returns the absolute root directory.
func (pv *PathValidator) Dir() string {
	return pv.dir
}

// Validate checks that name stays inside the root and returns it cleaned.
// Empty, absolute and escaping names are rejected.
func (pv *PathValidator) Validate(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrAbsolutePath, name)
	}

	clean := filepath.Clean(filepath.FromSlash(name))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, name)
	}
	return clean, nil
}

// WriteFile creates or truncates name and writes data to it.
func (pv *PathValidator) WriteFile(name string, data []byte, perm os.FileMode) error {
	clean, err := pv.Validate(name)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	f, err := pv.root.OpenFile(clean, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile returns the contents of name.
func (pv *PathValidator) ReadFile(name string) ([]byte, error) {
	clean, err := pv.Validate(name)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	f, err := pv.root.Open(clean)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Remove deletes name. A missing file yields an error matching
// os.ErrNotExist.
func (pv *PathValidator) Remove(name string) error {
	clean, err := pv.Validate(name)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Remove(clean)
}

// List returns the names of regular files directly under the root that end
// in suffix, sorted.
func (pv *PathValidator) List(suffix string) ([]string, error) {
	d, err := pv.root.Open(".")
	if err != nil {
		return nil, err
	}
	defer d.Close()

	entries, err := d.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
