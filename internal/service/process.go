package service

import (
	"iter"
	"strings"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/accesslog"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/aggregate"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/rs/zerolog/log"
)

// maxLoggedLine caps how much of a bad line goes into the log
const maxLoggedLine = 200

// ProcessStats counts what happened to the lines of one cycle
type ProcessStats struct {
	Lines    int
	Rejected map[accesslog.RejectReason]int
	Parsed   int
	Counted  int
}

// RejectedTotal sums rejections over all reasons
func (s ProcessStats) RejectedTotal() int {
	total := 0
	for _, n := range s.Rejected {
		total += n
	}
	return total
}

// Process parses raw lines and folds accepted records into per-minute
// distinct-address counts. Bad lines are logged and skipped; they never stop
// processing.
func Process(lines iter.Seq[string], filter aggregate.Filter) (*domain.Result, ProcessStats) {
	stats := ProcessStats{Rejected: make(map[accesslog.RejectReason]int)}
	agg := aggregate.New(filter)

	for line := range lines {
		stats.Lines++

		parsed := accesslog.ParseLine(line)
		if !parsed.OK() {
			stats.Rejected[parsed.Reason]++
			logRejected(line, parsed)
			continue
		}

		stats.Parsed++
		if agg.Add(parsed.Record) {
			stats.Counted++
		}
	}

	return agg.Result(), stats
}

func logRejected(line string, parsed accesslog.ParseResult) {
	trimmed := strings.TrimRight(line, "\r\n")
	if len(trimmed) > maxLoggedLine {
		trimmed = trimmed[:maxLoggedLine]
	}

	// Lines without the expected quoting are common noise; broken timestamps are not
	if parsed.Reason == accesslog.TooFewSegments {
		log.Debug().
			Str("line", trimmed).
			Str("reason", parsed.Reason.String()).
			Msg("Skipping line with unexpected format")
		return
	}

	log.Error().
		Err(parsed.Err).
		Str("line", trimmed).
		Str("reason", parsed.Reason.String()).
		Msg("Failed to parse log line, skipping")
}
