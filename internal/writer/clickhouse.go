package writer

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Executor is the subset of the ClickHouse client used by the writer
type Executor interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
	Close() error
}

// ClickHouseWriter mirrors per-minute counts into a ClickHouse table
type ClickHouseWriter struct {
	client Executor
	table  string
}

// NewClickHouseWriter creates the table if needed and returns a writer
func NewClickHouseWriter(ctx context.Context, client Executor, database, table string) (*ClickHouseWriter, error) {
	if !identPattern.MatchString(database) || !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse identifier %q.%q", database, table)
	}
	fullName := database + "." + table

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	cycle_id   UUID,
	finished   DateTime64(3),
	source     LowCardinality(String),
	minute     DateTime,
	unique_ips UInt32
) ENGINE = MergeTree
ORDER BY (source, minute, finished)`, fullName)

	if err := client.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", fullName, err)
	}

	return &ClickHouseWriter{client: client, table: fullName}, nil
}

// WriteResult appends one row per bucket
func (w *ClickHouseWriter) WriteResult(ctx context.Context, cycle CycleInfo, result *domain.Result) error {
	buckets := result.Buckets()
	if len(buckets) == 0 {
		return nil
	}

	cycleID, err := uuid.Parse(cycle.ID)
	if err != nil {
		cycleID = uuid.New()
	}

	batch, err := w.client.PrepareBatch(ctx, "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, bc := range buckets {
		if err := batch.Append(
			cycleID,
			cycle.Finished,
			cycle.Source,
			bc.Minute.Time(),
			uint32(bc.Count),
		); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Debug().
		Str("table", w.table).
		Int("rows", len(buckets)).
		Msg("Mirrored counts to ClickHouse")

	return nil
}

// Close closes the ClickHouse client
func (w *ClickHouseWriter) Close() error {
	return w.client.Close()
}
