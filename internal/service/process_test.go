package service

import (
	"slices"
	"testing"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/accesslog"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/aggregate"
)

func TestProcess(t *testing.T) {
	lines := []string{
		lineA,
		"",
		"no quotes at all",
		`1.2.3.4 - - [99/Foo/2023:99:99:99 -0700] "GET / HTTP/1.1" 200 1 "target"`,
		lineB,
		`9.9.9.9 - - [10/Oct/2023:13:55:01 -0700] "GET / HTTP/1.1" 200 1 "http://elsewhere/"`,
	}

	result, stats := Process(slices.Values(lines), aggregate.NewFilter("target", nil))

	assertCounts(t, result, map[string]int{bucket55: 2})

	if stats.Lines != 6 {
		t.Errorf("expected 6 lines, got %d", stats.Lines)
	}
	if stats.Parsed != 3 {
		t.Errorf("expected 3 parsed, got %d", stats.Parsed)
	}
	if stats.Counted != 2 {
		t.Errorf("expected 2 counted, got %d", stats.Counted)
	}
	if stats.Rejected[accesslog.TooFewSegments] != 2 || stats.Rejected[accesslog.BadTimestamp] != 1 {
		t.Errorf("unexpected rejections %v", stats.Rejected)
	}
}
