package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/aggregate"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/logreader"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/offset"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/remote"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/writer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Publisher ships a cycle result to the metrics sink
type Publisher interface {
	Publish(ctx context.Context, result *domain.Result) error
}

// CycleConfig wires the collaborators of one cycle
type CycleConfig struct {
	Dialer    remote.Dialer
	Store     offset.Store
	Publisher Publisher
	Mirror    writer.ResultWriter // optional
	LogPath   string
	Source    string // human-readable origin, e.g. host:path
	Filter    aggregate.Filter
}

// Cycle reads new log lines, counts distinct addresses per minute, publishes
// the counts and advances the saved offset. Every failure inside a cycle is
// logged and recovered; nothing escapes RunOnce.
type Cycle struct {
	cfg CycleConfig
	now func() time.Time
}

// Report describes what one cycle did
type Report struct {
	ID          string
	Result      *domain.Result
	Stats       ProcessStats
	SavedOffset int64 // offset loaded at start
	NewOffset   int64 // offset after reading, valid when OffsetSaved or SaveErr is set
	Rotated     bool
	OffsetSaved bool

	ReadErr    error // wraps domain.ErrConnection for session and file failures
	PublishErr error
	MirrorErr  error
	SaveErr    error
}

// NewCycle validates the wiring and returns a runnable cycle
func NewCycle(cfg CycleConfig) (*Cycle, error) {
	if cfg.Dialer == nil || cfg.Store == nil || cfg.Publisher == nil {
		return nil, fmt.Errorf("%w: dialer, offset store and publisher are required", domain.ErrConfiguration)
	}
	if cfg.LogPath == "" {
		return nil, fmt.Errorf("%w: log path is required", domain.ErrConfiguration)
	}
	if cfg.Source == "" {
		cfg.Source = cfg.LogPath
	}
	return &Cycle{cfg: cfg, now: time.Now}, nil
}

// RunOnce executes one full cycle
func (c *Cycle) RunOnce(ctx context.Context) *Report {
	report := &Report{ID: uuid.NewString(), Result: domain.NewResult()}
	logger := log.With().Str("cycle_id", report.ID).Logger()

	ctx, span := startSpan(ctx, "cycle",
		attribute.String("cycle.id", report.ID),
		attribute.String("log.source", c.cfg.Source),
	)

	report.SavedOffset = c.cfg.Store.Load(ctx)
	logger.Info().Int64("offset", report.SavedOffset).Msg("Last saved position")

	drained := c.read(ctx, &logger, report)

	c.publish(ctx, &logger, report)
	c.mirror(ctx, &logger, report)

	if drained {
		c.save(ctx, &logger, report)
	}

	span.SetAttributes(
		attribute.Int("lines", report.Stats.Lines),
		attribute.Int("buckets", report.Result.Len()),
		attribute.Int64("offset.new", report.NewOffset),
	)
	endSpan(span, errors.Join(report.ReadErr, report.PublishErr, report.SaveErr), "cycle finished")

	logger.Info().
		Int("lines", report.Stats.Lines).
		Int("rejected", report.Stats.RejectedTotal()).
		Int("counted", report.Stats.Counted).
		Interface("unique_ips_per_minute", report.Result.Map()).
		Msg("Cycle finished")

	return report
}

// read consumes new lines and fills the report.
// Returns true when the file was read to the end and the offset may be saved.
func (c *Cycle) read(ctx context.Context, logger *zerolog.Logger, report *Report) bool {
	ctx, span := startSpan(ctx, "cycle.read")

	session, err := c.cfg.Dialer.Dial(ctx)
	if err != nil {
		report.ReadErr = wrapConnection(err)
		logger.Error().Err(err).Msg("Failed to connect to remote host, skipping read")
		endSpan(span, err, "dial failed")
		return false
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close remote session")
		} else {
			logger.Info().Msg("Remote session closed")
		}
	}()

	file, err := session.Open(c.cfg.LogPath)
	if err != nil {
		report.ReadErr = wrapConnection(err)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Error().Str("path", c.cfg.LogPath).Msg("Log file not found")
		} else {
			logger.Error().Err(err).Str("path", c.cfg.LogPath).Msg("Failed to open log file")
		}
		endSpan(span, err, "open failed")
		return false
	}
	defer file.Close()

	batch, err := logreader.Open(file, report.SavedOffset)
	if err != nil {
		report.ReadErr = wrapConnection(err)
		logger.Error().Err(err).Msg("Failed to position log file")
		endSpan(span, err, "seek failed")
		return false
	}
	report.Rotated = batch.Rotated()

	report.Result, report.Stats = Process(batch.Lines(), c.cfg.Filter)
	report.NewOffset = batch.Offset()

	if err := batch.Err(); err != nil {
		// Keep what was counted, but re-read these lines next cycle
		report.ReadErr = wrapConnection(err)
		logger.Error().
			Err(err).
			Int64("offset", report.NewOffset).
			Msg("Log read interrupted, position will not be saved")
		endSpan(span, err, "read interrupted")
		return false
	}

	endSpan(span, nil, "read complete")
	return batch.Drained()
}

func (c *Cycle) publish(ctx context.Context, logger *zerolog.Logger, report *Report) {
	ctx, span := startSpan(ctx, "cycle.publish")
	err := c.cfg.Publisher.Publish(ctx, report.Result)
	if err != nil {
		report.PublishErr = err
		logger.Error().Err(err).Msg("Failed to push metrics")
	}
	endSpan(span, err, "publish")
}

func (c *Cycle) mirror(ctx context.Context, logger *zerolog.Logger, report *Report) {
	if c.cfg.Mirror == nil {
		return
	}
	info := writer.CycleInfo{ID: report.ID, Source: c.cfg.Source, Finished: c.now()}
	if err := c.cfg.Mirror.WriteResult(ctx, info, report.Result); err != nil {
		report.MirrorErr = err
		logger.Warn().Err(err).Msg("Failed to mirror counts to ClickHouse")
	}
}

func (c *Cycle) save(ctx context.Context, logger *zerolog.Logger, report *Report) {
	if err := c.cfg.Store.Save(ctx, report.NewOffset); err != nil {
		report.SaveErr = err
		logger.Error().Err(err).Int64("offset", report.NewOffset).Msg("Failed to save position")
		return
	}
	report.OffsetSaved = true
	logger.Info().Int64("offset", report.NewOffset).Msg("New position saved")
}

func wrapConnection(err error) error {
	if errors.Is(err, domain.ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrConnection, err)
}
