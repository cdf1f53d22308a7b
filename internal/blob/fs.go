package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FS stores blobs under a local directory and returns file:// URIs.
// Used when no bucket is configured and by tests.
type FS struct {
	root string
}

// NewFS creates the root directory if needed.
func NewFS(root string) (*FS, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		root = filepath.Join(home, ".go_botgraph", "blobs")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FS{root: root}, nil
}

// Put writes data under root/key, creating intermediate directories.
func (f *FS) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(f.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %q: %w", key, err)
	}
	return "file://" + path, nil
}
