package repository

import (
	"context"
	"errors"
)

// ErrConflict is returned by Put when the stored version no longer matches
// the version the caller loaded.
var ErrConflict = errors.New("repository: version conflict")

// Item is a stored document and the version it was read at. Version 0 means
// the key has never been written.
type Item struct {
	Data    []byte
	Version int64
}

// Store is the key/value persistence consumed by the state manager.
type Store interface {
	// Get returns found=false for a missing key.
	Get(ctx context.Context, key string) (Item, bool, error)
	// Put overwrites the document if the stored version equals
	// expectedVersion (0 = key must be absent) and returns the new version.
	Put(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error)
}
