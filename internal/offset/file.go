package offset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/rs/zerolog/log"
)

// FileStore keeps the offset as a decimal number in a plain-text file
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed offset store
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the position file
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the offset from the position file
func (s *FileStore) Load(ctx context.Context) int64 {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().
				Str("position_file", s.path).
				Msg("No saved position, starting from 0")
			return 0
		}
		log.Error().
			Err(err).
			Str("position_file", s.path).
			Msg("Failed to read saved position, starting from 0")
		return 0
	}

	value, ok := parseOffset(string(data))
	if !ok {
		log.Warn().
			Str("position_file", s.path).
			Str("content", truncate(string(data), 64)).
			Msg("Saved position is not a non-negative integer, starting from 0")
		return 0
	}

	return value
}

// Save writes the offset through a temp file and rename, so a crash never
// leaves a half-written number behind
func (s *FileStore) Save(ctx context.Context, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", domain.ErrPersistence, offset)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", domain.ErrPersistence, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(strconv.FormatInt(offset, 10)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to write position: %v", domain.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to close temp file: %v", domain.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to replace position file: %v", domain.ErrPersistence, err)
	}

	log.Debug().
		Str("position_file", s.path).
		Int64("offset", offset).
		Msg("Offset updated")

	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

// parseOffset accepts only plain decimal digits, surrounding whitespace allowed
func parseOffset(raw string) (int64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
