package logreader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/remote"
	"github.com/rs/zerolog/log"
)

const readBufferSize = 64 * 1024

// Batch is the set of lines appended to the log since the saved offset.
// It is valid for one cycle and its line sequence can be consumed once.
type Batch struct {
	file     remote.File
	reader   *bufio.Reader
	start    int64
	size     int64
	rotated  bool
	consumed int64
	lines    int64
	drained  bool
	used     bool
	err      error
}

// Open positions file at the saved offset. A saved offset beyond the current
// file size means the log was rotated, and reading restarts from 0.
// Only the size is compared; a rotated file that already grew past the old
// offset is not detected.
func Open(file remote.File, saved int64) (*Batch, error) {
	size, err := file.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	start := saved
	rotated := false
	if saved < 0 || saved > size {
		log.Warn().
			Int64("saved_offset", saved).
			Int64("file_size", size).
			Msg("Log file was rotated, resetting position")
		start = 0
		rotated = true
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to offset %d: %w", start, err)
	}

	log.Info().
		Int64("last_position", start).
		Int64("file_size", size).
		Msg("Reading new log lines")

	return &Batch{
		file:    file,
		reader:  bufio.NewReaderSize(file, readBufferSize),
		start:   start,
		size:    size,
		rotated: rotated,
	}, nil
}

// Lines yields raw lines from the start offset to end of file, newline
// included when present. A final line without newline is yielded as well.
// Calling Lines a second time yields nothing.
func (b *Batch) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if b.used {
			return
		}
		b.used = true

		for {
			line, err := b.reader.ReadString('\n')
			if len(line) > 0 {
				b.consumed += int64(len(line))
				b.lines++
				if !yield(line) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					b.err = fmt.Errorf("failed to read log: %w", err)
				} else {
					b.drained = true
				}
				return
			}
		}
	}
}

// Offset is the position right after the last consumed line
func (b *Batch) Offset() int64 {
	return b.start + b.consumed
}

// Start is the position reading began at
func (b *Batch) Start() int64 {
	return b.start
}

// Size is the file size observed when the batch was opened
func (b *Batch) Size() int64 {
	return b.size
}

// Rotated reports whether the saved offset was discarded
func (b *Batch) Rotated() bool {
	return b.rotated
}

// LineCount is the number of lines consumed so far
func (b *Batch) LineCount() int64 {
	return b.lines
}

// Drained reports whether the sequence reached end of file without error
func (b *Batch) Drained() bool {
	return b.drained
}

// Err returns the read error that stopped the sequence, if any
func (b *Batch) Err() error {
	return b.err
}
