// Package accesslog parses lines of the nginx "combined" access log format:
//
//	ADDRESS - USER [TIMESTAMP] "REQUEST" STATUS SIZE "REFERER" "USER_AGENT"
//
// The parser never fails a whole batch. Every line yields a ParseResult that
// either carries a record or explains why the line was rejected.
package accesslog

import (
	"fmt"
	"strings"
	"time"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/araddon/dateparse"
)

// Layouts tried before falling back to dateparse
var timestampLayouts = []string{
	"02/Jan/2006:15:04:05 -0700",
	"02/Jan/2006:15:04:05",
}

// minQuoteSegments is the number of '"'-separated segments a line needs to
// carry request and referer
const minQuoteSegments = 5

// RejectReason explains why a line produced no record
type RejectReason int

const (
	// Accepted means the line produced a record
	Accepted RejectReason = iota
	// TooFewSegments means the line does not have the quoted request and referer
	TooFewSegments
	// MissingTimestamp means the leading segment has no timestamp token
	MissingTimestamp
	// BadTimestamp means the timestamp token could not be parsed
	BadTimestamp
)

func (r RejectReason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case TooFewSegments:
		return "too_few_segments"
	case MissingTimestamp:
		return "missing_timestamp"
	case BadTimestamp:
		return "bad_timestamp"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// ParseResult is the outcome of parsing one line
type ParseResult struct {
	Record *domain.LogRecord
	Reason RejectReason
	Err    error // wraps domain.ErrMalformedLine when Reason != Accepted
}

// OK reports whether the line produced a record
func (r ParseResult) OK() bool {
	return r.Reason == Accepted && r.Record != nil
}

// ParseLine parses one raw line, with or without the trailing newline
func ParseLine(line string) ParseResult {
	parts := strings.Split(line, `"`)
	if len(parts) < minQuoteSegments {
		return reject(TooFewSegments, "expected at least %d quote-separated segments, got %d", minQuoteSegments, len(parts))
	}

	fields := strings.Fields(parts[0])
	if len(fields) < 4 {
		return reject(MissingTimestamp, "expected at least 4 leading fields, got %d", len(fields))
	}

	address := fields[0]
	rawTimestamp := extractTimestamp(fields[3:])
	referer := strings.TrimSpace(parts[3])

	timestamp, err := ParseTimestamp(rawTimestamp)
	if err != nil {
		return ParseResult{
			Reason: BadTimestamp,
			Err:    fmt.Errorf("%w: %v", domain.ErrMalformedLine, err),
		}
	}

	return ParseResult{
		Record: &domain.LogRecord{
			Address:   address,
			Timestamp: timestamp,
			Referer:   referer,
		},
		Reason: Accepted,
	}
}

// ParseTimestamp parses an access log timestamp such as
// "10/Oct/2023:13:55:36 -0700". Unknown shapes go through dateparse.
// Timestamps without a zone are taken as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	// Tolerate junk after date and zone, e.g. "10/Oct/2023:13:55:36 -0700 MSK"
	if fields := strings.Fields(raw); len(fields) > 2 {
		if t, err := time.Parse(timestampLayouts[0], fields[0]+" "+fields[1]); err == nil {
			return t, nil
		}
	}

	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", raw, err)
	}
	return t, nil
}

// extractTimestamp joins tokens from "[date" up to the token closing with "]"
func extractTimestamp(tokens []string) string {
	first := strings.TrimPrefix(tokens[0], "[")
	if strings.HasSuffix(first, "]") {
		return strings.TrimSuffix(first, "]")
	}

	collected := []string{first}
	for _, tok := range tokens[1:] {
		if strings.HasSuffix(tok, "]") {
			collected = append(collected, strings.TrimSuffix(tok, "]"))
			break
		}
		if len(collected) >= 3 {
			// No closing bracket nearby; use the date token alone
			return first
		}
		collected = append(collected, tok)
	}

	return strings.Join(collected, " ")
}

func reject(reason RejectReason, format string, args ...interface{}) ParseResult {
	return ParseResult{
		Reason: reason,
		Err:    fmt.Errorf("%w: %s", domain.ErrMalformedLine, fmt.Sprintf(format, args...)),
	}
}
