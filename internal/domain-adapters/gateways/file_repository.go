package gateways

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileRepository reads a Maven repository laid out on the local filesystem
// (e.g. ~/.m2/repository). It never retries.
type FileRepository struct {
	name string
	root string
}

// NewFileRepository creates a repository rooted at a directory or file:// URL
func NewFileRepository(name, location string) (*FileRepository, error) {
	root := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("invalid file repository url %q: %w", location, err)
		}
		root = u.Path
	}
	if strings.HasPrefix(root, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		root = filepath.Join(home, root[2:])
	}
	if root == "" {
		return nil, fmt.Errorf("repository %q has no path", name)
	}
	if name == "" {
		name = location
	}
	return &FileRepository{name: name, root: filepath.Clean(root)}, nil
}

// Name returns the configured repository name
func (r *FileRepository) Name() string { return r.name }

// Remote is always false for filesystem repositories
func (r *FileRepository) Remote() bool { return false }

// Get reads root/relPath
func (r *FileRepository) Get(_ context.Context, relPath string) ([]byte, error) {
	p, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // G304: path is confined to the repository root
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(p)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(r.name, p)
		}
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// ListDirs returns the sorted subdirectory names of root/relPath
func (r *FileRepository) ListDirs(_ context.Context, relPath string) ([]string, error) {
	p, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(r.root, filepath.FromSlash(p)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(r.name, p)
		}
		return nil, fmt.Errorf("failed to list %s: %w", p, err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
