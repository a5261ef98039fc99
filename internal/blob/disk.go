package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DiskStore keeps chunk bytes on the local filesystem under a root directory.
// Keys map directly to relative paths ({session_id}/{index}).
type DiskStore struct {
	root string
}

// NewDiskStore creates the root directory if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (d *DiskStore) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

// Put writes data to the key's path, creating the session directory as needed.
func (d *DiskStore) Put(ctx context.Context, key string, data []byte) error {
	path := d.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chunk directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write chunk %s: %w", key, err)
	}
	return nil
}

// Get reads the bytes stored at key.
func (d *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(d.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", key, err)
	}
	return data, nil
}
