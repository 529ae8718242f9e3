// Package hostfs exposes a read-only view of a directory to snippets as
// bridged host operations.
package hostfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/itsmostafa/goconsole/internal/bridge"
)

// ErrOutsideRoot is returned for paths that resolve outside the root.
var ErrOutsideRoot = errors.New("path escapes the filesystem root")

// FS serves files below Root.
type FS struct {
	// Root is the directory relative paths resolve against. Nothing outside
	// it can be read.
	Root string

	// MaxFileSize is the maximum number of bytes returned by readFile
	// (default: 1MB). Longer files are truncated.
	MaxFileSize int64

	// ExcludeDirs are directory names hidden from listings and globs.
	ExcludeDirs []string
}

// Entry is one listed file or directory.
type Entry struct {
	Name     string  `json:"name"`
	IsDir    bool    `json:"isDir"`
	Size     int64   `json:"size,omitempty"`
	Children []Entry `json:"children,omitempty"`
}

// New returns an FS rooted at root with default settings.
func New(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	return &FS{
		Root:        abs,
		MaxFileSize: 1024 * 1024,
		ExcludeDirs: []string{".git", "node_modules", "vendor"},
	}, nil
}

// Ops returns the bridged operations, named as snippets call them on host.
func (f *FS) Ops() map[string]bridge.Func {
	return map[string]bridge.Func{
		"listDir":  f.listOp,
		"readFile": f.readOp,
		"glob":     f.globOp,
		"exists":   f.existsOp,
		"tree":     f.treeOp,
	}
}

// resolve maps path to a real path below Root. Symlinks are followed and
// must land below Root too.
func (f *FS) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.Root, path)
	}
	path = filepath.Clean(path)
	if !within(f.Root, path) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return f.confine(path)
}

// confine follows symlinks in path and checks the result is below Root.
func (f *FS) confine(path string) (string, error) {
	root, err := filepath.EvalSymlinks(f.Root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	if !within(root, real) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return real, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// List returns the entries of the directory at path.
func (f *FS) List(path string) ([]Entry, error) {
	resolved, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, err
	}

	result := []Entry{}
	for _, entry := range entries {
		if entry.IsDir() && f.excluded(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		e := Entry{Name: entry.Name(), IsDir: entry.IsDir()}
		if !e.IsDir {
			e.Size = info.Size()
		}
		result = append(result, e)
	}
	return result, nil
}

// Read returns the contents of the file at path, truncated to MaxFileSize.
func (f *FS) Read(path string) (string, error) {
	resolved, err := f.resolve(path)
	if err != nil {
		return "", err
	}
	file, err := os.Open(resolved)
	if err != nil {
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	content, err := io.ReadAll(io.LimitReader(file, f.MaxFileSize))
	if err != nil {
		return "", err
	}
	if info.Size() > f.MaxFileSize {
		return string(content) + "\n... [truncated]", nil
	}
	return string(content), nil
}

// Glob returns the paths matching pattern, relative to Root.
func (f *FS) Glob(pattern string) ([]string, error) {
	if filepath.IsAbs(pattern) {
		return nil, fmt.Errorf("%w: patterns must be relative", ErrOutsideRoot)
	}
	matches, err := filepath.Glob(filepath.Join(f.Root, pattern))
	if err != nil {
		return nil, err
	}

	result := []string{}
	for _, match := range matches {
		rel, err := filepath.Rel(f.Root, match)
		if err != nil || !within(f.Root, match) || f.excludedPath(rel) {
			continue
		}
		if _, err := f.confine(match); err != nil {
			continue
		}
		result = append(result, rel)
	}
	return result, nil
}

// Exists reports whether path exists below Root.
func (f *FS) Exists(path string) bool {
	resolved, err := f.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(resolved)
	return err == nil
}

// Tree returns the directory tree at path down to depth levels.
func (f *FS) Tree(path string, depth int) ([]Entry, error) {
	resolved, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	return f.buildTree(resolved, depth)
}

func (f *FS) buildTree(path string, depth int) ([]Entry, error) {
	if depth <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var result []Entry
	for _, entry := range entries {
		if entry.IsDir() && f.excluded(entry.Name()) {
			continue
		}
		node := Entry{Name: entry.Name(), IsDir: entry.IsDir()}
		if entry.IsDir() {
			children, err := f.buildTree(filepath.Join(path, entry.Name()), depth-1)
			if err == nil {
				node.Children = children
			}
		}
		result = append(result, node)
	}
	return result, nil
}

func (f *FS) excluded(name string) bool {
	return slices.Contains(f.ExcludeDirs, name)
}

func (f *FS) excludedPath(rel string) bool {
	return slices.ContainsFunc(strings.Split(rel, string(filepath.Separator)), f.excluded)
}

// args decodes the positional arguments of a bridged call. Missing trailing
// arguments keep their zero values.
func args(raw json.RawMessage, dst ...any) error {
	var positional []json.RawMessage
	if err := json.Unmarshal(raw, &positional); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	for i, d := range dst {
		if i >= len(positional) || string(positional[i]) == "null" {
			break
		}
		if err := json.Unmarshal(positional[i], d); err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
	}
	return nil
}

func (f *FS) listOp(ctx context.Context, raw json.RawMessage) (any, error) {
	path := "."
	if err := args(raw, &path); err != nil {
		return nil, err
	}
	return f.List(path)
}

func (f *FS) readOp(ctx context.Context, raw json.RawMessage) (any, error) {
	var path string
	if err := args(raw, &path); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New("readFile requires a path")
	}
	return f.Read(path)
}

func (f *FS) globOp(ctx context.Context, raw json.RawMessage) (any, error) {
	var pattern string
	if err := args(raw, &pattern); err != nil {
		return nil, err
	}
	if pattern == "" {
		return nil, errors.New("glob requires a pattern")
	}
	return f.Glob(pattern)
}

func (f *FS) existsOp(ctx context.Context, raw json.RawMessage) (any, error) {
	var path string
	if err := args(raw, &path); err != nil {
		return nil, err
	}
	return path != "" && f.Exists(path), nil
}

func (f *FS) treeOp(ctx context.Context, raw json.RawMessage) (any, error) {
	path, depth := ".", 3
	if err := args(raw, &path, &depth); err != nil {
		return nil, err
	}
	return f.Tree(path, depth)
}
