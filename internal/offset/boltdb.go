package offset

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	bucketName = "offsets"
)

// BoltDBStore implements Store using BoltDB, keyed by the tailed log path
type BoltDBStore struct {
	db  *bbolt.DB
	key []byte
}

// NewBoltDBStore creates a new BoltDB offset store for one log file
func NewBoltDBStore(dbPath, logPath string) (*BoltDBStore, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		// Usually another exporter instance still holds the lock
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Str("log_path", logPath).
		Msg("BoltDB offset store initialized")

	return &BoltDBStore{db: db, key: []byte(logPath)}, nil
}

// Load retrieves the offset for the configured log file
func (s *BoltDBStore) Load(ctx context.Context) int64 {
	var (
		value   uint64
		found   bool
		invalid bool
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get(s.key)
		if val == nil {
			return nil
		}
		found = true

		if len(val) != 8 {
			invalid = true
			return nil
		}

		value = binary.BigEndian.Uint64(val)
		return nil
	})

	switch {
	case err != nil:
		log.Error().Err(err).Str("key", string(s.key)).Msg("Failed to read saved position, starting from 0")
		return 0
	case !found:
		log.Debug().Str("key", string(s.key)).Msg("No saved position, starting from 0")
		return 0
	case invalid || value > 1<<62:
		log.Warn().Str("key", string(s.key)).Msg("Saved position is invalid, starting from 0")
		return 0
	}

	return int64(value)
}

// Save stores the offset for the configured log file
func (s *BoltDBStore) Save(ctx context.Context, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", domain.ErrPersistence, offset)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(offset))

		return b.Put(s.key, val)
	})

	if err != nil {
		return fmt.Errorf("%w: failed to set offset: %v", domain.ErrPersistence, err)
	}

	log.Debug().
		Str("key", string(s.key)).
		Int64("offset", offset).
		Msg("Offset updated")

	return nil
}

// Close closes the BoltDB database
func (s *BoltDBStore) Close() error {
	log.Info().Msg("Closing BoltDB offset store")
	return s.db.Close()
}
