// Package blob stores raw audio chunk bytes outside the relational store.
package blob

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no object exists at the requested key.
var ErrNotFound = errors.New("blob not found")

// Store is durable byte storage keyed by (session id, chunk index).
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Key returns the deterministic storage key for one chunk.
func Key(sessionID string, chunkIndex int) string {
	return fmt.Sprintf("%s/%d", sessionID, chunkIndex)
}
