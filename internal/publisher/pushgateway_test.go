package publisher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
)

var zone = time.FixedZone("", -7*60*60)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 30, 45, 123, time.Local)
}

func resultOf(counts map[time.Time]int) *domain.Result {
	result := domain.NewResult()
	for ts, count := range counts {
		result.Set(domain.BucketOf(ts), count)
	}
	return result
}

func sampleLines(payload string) []string {
	var lines []string
	for _, line := range strings.Split(payload, "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func TestPayload(t *testing.T) {
	p := New("http://pushgateway:9091", WithClock(fixedClock))

	tests := []struct {
		name   string
		result *domain.Result
		want   []string
	}{
		{
			name:   "empty result gives heartbeat",
			result: domain.NewResult(),
			want:   []string{`nginx_unique_ips{minute="2024-03-01T12:30:45"} 0`},
		},
		{
			name:   "nil result gives heartbeat",
			result: nil,
			want:   []string{`nginx_unique_ips{minute="2024-03-01T12:30:45"} 0`},
		},
		{
			name:   "single bucket",
			result: resultOf(map[time.Time]int{time.Date(2023, 10, 10, 13, 55, 0, 0, zone): 1}),
			want:   []string{`nginx_unique_ips{minute="2023-10-10T13:55:00"} 1`},
		},
		{
			name: "several buckets ordered by time",
			result: resultOf(map[time.Time]int{
				time.Date(2023, 10, 10, 13, 57, 0, 0, zone): 3,
				time.Date(2023, 10, 10, 13, 55, 0, 0, zone): 2,
			}),
			want: []string{
				`nginx_unique_ips{minute="2023-10-10T13:55:00"} 2`,
				`nginx_unique_ips{minute="2023-10-10T13:57:00"} 3`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := p.Payload(tt.result)
			if err != nil {
				t.Fatalf("Payload() error = %v", err)
			}
			if !strings.HasSuffix(payload, "\n") {
				t.Errorf("payload is not newline terminated: %q", payload)
			}

			got := sampleLines(payload)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d samples, got %d: %q", len(tt.want), len(got), payload)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestRender_MergesIdenticalLabels(t *testing.T) {
	p := New("http://pushgateway:9091")
	result := resultOf(map[time.Time]int{
		time.Date(2023, 10, 10, 13, 55, 0, 0, zone):     1,
		time.Date(2023, 10, 10, 13, 55, 0, 0, time.UTC): 2,
	})

	mf := p.Render(result)
	if len(mf.Metric) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(mf.Metric))
	}
	if v := mf.Metric[0].GetGauge().GetValue(); v != 3 {
		t.Errorf("expected merged value 3, got %v", v)
	}
}

func TestPublish(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotBody   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := New(server.URL+"/", WithHTTPClient(server.Client()), WithClock(fixedClock))
	result := resultOf(map[time.Time]int{time.Date(2023, 10, 10, 13, 55, 0, 0, zone): 2})

	if err := p.Publish(context.Background(), result); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("expected PUT, got %s", gotMethod)
	}
	if gotPath != "/metrics/job/nginx_unique_ips" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if !strings.Contains(gotBody, `nginx_unique_ips{minute="2023-10-10T13:55:00"} 2`+"\n") {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestPublish_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad metrics", http.StatusBadRequest)
	}))
	defer server.Close()

	p := New(server.URL, WithHTTPClient(server.Client()))
	if err := p.Publish(context.Background(), domain.NewResult()); !errors.Is(err, domain.ErrPublish) {
		t.Errorf("Publish() with 400 error = %v, want ErrPublish", err)
	}

	unreachable := httptest.NewServer(http.NotFoundHandler())
	url := unreachable.URL
	unreachable.Close()

	p = New(url)
	if err := p.Publish(context.Background(), domain.NewResult()); !errors.Is(err, domain.ErrPublish) {
		t.Errorf("Publish() to closed server error = %v, want ErrPublish", err)
	}
}
