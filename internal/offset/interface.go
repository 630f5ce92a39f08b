package offset

import (
	"context"
)

// Store persists the single byte-offset watermark of the tailed log
// Implementations: plain-text file (default), BoltDB
type Store interface {
	// Load returns the previously saved offset
	// Returns 0 if nothing was saved, the value is invalid or reading fails
	Load(ctx context.Context) int64

	// Save overwrites the saved offset
	Save(ctx context.Context, offset int64) error

	// Close releases resources held by the store
	Close() error
}
