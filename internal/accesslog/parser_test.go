package accesslog

import (
	"errors"
	"testing"
	"time"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
)

const sampleLine = `1.2.3.4 - - [10/Oct/2023:13:55:36 -0700] "GET /x HTTP/1.1" 200 100 "http://example.com/target"`

func TestParseLine(t *testing.T) {
	zone := time.FixedZone("", -7*60*60)

	tests := []struct {
		name       string
		line       string
		wantReason RejectReason
		checks     func(t *testing.T, record *domain.LogRecord)
	}{
		{
			name:       "combined format with referer only",
			line:       sampleLine,
			wantReason: Accepted,
			checks: func(t *testing.T, record *domain.LogRecord) {
				if record.Address != "1.2.3.4" {
					t.Errorf("expected Address=1.2.3.4, got %s", record.Address)
				}
				if record.Referer != "http://example.com/target" {
					t.Errorf("expected referer, got %q", record.Referer)
				}
				want := time.Date(2023, 10, 10, 13, 55, 36, 0, zone)
				if !record.Timestamp.Equal(want) {
					t.Errorf("expected Timestamp=%v, got %v", want, record.Timestamp)
				}
				if _, offset := record.Timestamp.Zone(); offset != -7*60*60 {
					t.Errorf("expected zone offset -0700, got %d", offset)
				}
			},
		},
		{
			name:       "full combined format with user agent and newline",
			line:       `10.0.0.7 - alice [01/Feb/2024:00:00:59 +0300] "POST /api HTTP/2.0" 201 5 "https://shop.example/cart" "Mozilla/5.0 (X11)"` + "\n",
			wantReason: Accepted,
			checks: func(t *testing.T, record *domain.LogRecord) {
				if record.Address != "10.0.0.7" {
					t.Errorf("expected Address=10.0.0.7, got %s", record.Address)
				}
				if record.Referer != "https://shop.example/cart" {
					t.Errorf("expected referer, got %q", record.Referer)
				}
				if record.Timestamp.Second() != 59 || record.Timestamp.Minute() != 0 {
					t.Errorf("unexpected timestamp %v", record.Timestamp)
				}
			},
		},
		{
			name:       "CRLF terminated line",
			line:       sampleLine + "\r\n",
			wantReason: Accepted,
		},
		{
			name:       "timestamp without zone",
			line:       `1.2.3.4 - - [10/Oct/2023:13:55:36] "GET / HTTP/1.1" 200 1 "-"`,
			wantReason: Accepted,
			checks: func(t *testing.T, record *domain.LogRecord) {
				if record.Timestamp.Location() != time.UTC {
					t.Errorf("expected UTC for zoneless timestamp, got %v", record.Timestamp.Location())
				}
				if record.Referer != "-" {
					t.Errorf("expected referer '-', got %q", record.Referer)
				}
			},
		},
		{
			name:       "empty referer",
			line:       `1.2.3.4 - - [10/Oct/2023:13:55:36 -0700] "GET / HTTP/1.1" 200 1 ""`,
			wantReason: Accepted,
			checks: func(t *testing.T, record *domain.LogRecord) {
				if record.Referer != "" {
					t.Errorf("expected empty referer, got %q", record.Referer)
				}
			},
		},
		{
			name:       "empty line",
			line:       "",
			wantReason: TooFewSegments,
		},
		{
			name:       "no quotes",
			line:       "1.2.3.4 - - [10/Oct/2023:13:55:36 -0700] GET / 200",
			wantReason: TooFewSegments,
		},
		{
			name:       "only request quoted",
			line:       `1.2.3.4 - - [10/Oct/2023:13:55:36 -0700] "GET / HTTP/1.1" 200 1`,
			wantReason: TooFewSegments,
		},
		{
			name:       "short leading segment",
			line:       `1.2.3.4 - "GET / HTTP/1.1" 200 1 "http://example.com/target"`,
			wantReason: MissingTimestamp,
		},
		{
			name:       "garbage timestamp",
			line:       `1.2.3.4 - - [not-a-date] "GET / HTTP/1.1" 200 1 "http://example.com/target"`,
			wantReason: BadTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseLine(tt.line)

			if result.Reason != tt.wantReason {
				t.Fatalf("ParseLine() reason = %v, want %v (err=%v)", result.Reason, tt.wantReason, result.Err)
			}

			if tt.wantReason != Accepted {
				if result.OK() {
					t.Errorf("expected rejection, got record %+v", result.Record)
				}
				if !errors.Is(result.Err, domain.ErrMalformedLine) {
					t.Errorf("expected ErrMalformedLine, got %v", result.Err)
				}
				return
			}

			if !result.OK() {
				t.Fatalf("expected record, got err %v", result.Err)
			}
			if tt.checks != nil {
				tt.checks(t, result.Record)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{
			name: "access log format",
			raw:  "10/Oct/2023:13:55:36 -0700",
			want: time.Date(2023, 10, 10, 20, 55, 36, 0, time.UTC),
		},
		{
			name: "trailing zone name",
			raw:  "10/Oct/2023:13:55:36 +0000 UTC",
			want: time.Date(2023, 10, 10, 13, 55, 36, 0, time.UTC),
		},
		{
			name: "ISO 8601 via fallback",
			raw:  "2023-10-10T13:55:36Z",
			want: time.Date(2023, 10, 10, 13, 55, 36, 0, time.UTC),
		},
		{
			name:    "empty",
			raw:     "  ",
			wantErr: true,
		},
		{
			name:    "nonsense",
			raw:     "yesterday-ish",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp() = %v, want %v", got, tt.want)
			}
		})
	}
}
