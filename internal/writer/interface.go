package writer

import (
	"context"
	"time"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
)

// ResultWriter keeps a copy of each cycle's per-minute counts
type ResultWriter interface {
	// WriteResult stores one cycle's buckets; an empty result writes nothing
	WriteResult(ctx context.Context, cycle CycleInfo, result *domain.Result) error

	// Close releases the underlying connection
	Close() error
}

// CycleInfo identifies the cycle that produced a result
type CycleInfo struct {
	ID       string
	Source   string // host:path of the tailed log
	Finished time.Time
}
