// Package remote abstracts the remote file the exporter tails: a session is
// opened once per cycle, the log file is opened through it, and both are
// closed before the cycle ends.
package remote

import (
	"context"
	"io"
)

// File is a readable, seekable file that can report its size
type File interface {
	io.Reader
	io.Seeker
	io.Closer

	// Size returns the current size of the file in bytes
	Size() (int64, error)
}

// Session is an open connection to the host that holds the log
type Session interface {
	// Open opens the named file for reading
	// Errors for missing files satisfy errors.Is(err, fs.ErrNotExist)
	Open(path string) (File, error)

	// Close releases the connection
	Close() error
}

// Dialer establishes sessions
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}
