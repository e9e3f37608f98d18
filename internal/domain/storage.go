package domain

import "context"

// Durable storage keys used by the persistence bridge.
const (
	StorageKeyLayout = "layout"
	StorageKeyMap    = "map"
)

// KeyValueStore is the durable client-side store the board is mirrored to.
// Get reports ok=false for a missing key rather than an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
