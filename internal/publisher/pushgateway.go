package publisher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
)

const (
	// MetricName is both the metric and the Pushgateway job name
	MetricName = "nginx_unique_ips"
	// MinuteLabel carries the bucket timestamp
	MinuteLabel = "minute"
	// labelTimeFormat has second precision and no zone suffix
	labelTimeFormat = "2006-01-02T15:04:05"
)

// Publisher renders per-minute counts and pushes them to a Pushgateway
type Publisher struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// Option configures a Publisher
type Option func(*Publisher)

// WithHTTPClient overrides the HTTP client used for pushes
func WithHTTPClient(client *http.Client) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithClock overrides the clock used for the heartbeat label
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// New creates a publisher for the Pushgateway at baseURL
func New(baseURL string, opts ...Option) *Publisher {
	p := &Publisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Render builds the metric family for a cycle result. An empty result gives a
// single zero sample labelled with the current local time.
func (p *Publisher) Render(result *domain.Result) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(MetricName),
		Type: dto.MetricType_GAUGE.Enum(),
	}

	if result.Len() == 0 {
		mf.Metric = append(mf.Metric, sample(p.now().Format(labelTimeFormat), 0))
		return mf
	}

	// Buckets in different zones can render to the same label; their counts are summed
	index := make(map[string]*dto.Metric)
	for _, bc := range result.Buckets() {
		label := bc.Minute.Time().Format(labelTimeFormat)
		if existing, ok := index[label]; ok {
			existing.Gauge.Value = proto.Float64(existing.Gauge.GetValue() + float64(bc.Count))
			log.Debug().Str("minute", label).Msg("Merged buckets with identical label")
			continue
		}
		m := sample(label, float64(bc.Count))
		index[label] = m
		mf.Metric = append(mf.Metric, m)
	}

	return mf
}

// Payload renders the result in the text exposition format
func (p *Publisher) Payload(result *domain.Result) (string, error) {
	var sb strings.Builder
	if _, err := expfmt.MetricFamilyToText(&sb, p.Render(result)); err != nil {
		return "", fmt.Errorf("failed to render metrics: %w", err)
	}
	return sb.String(), nil
}

// Publish pushes the result with PUT to <base>/metrics/job/nginx_unique_ips,
// replacing whatever the job held before. No retries.
func (p *Publisher) Publish(ctx context.Context, result *domain.Result) error {
	mf := p.Render(result)
	if result.Len() == 0 {
		log.Warn().Msg("No qualifying log data, pushing zero heartbeat")
	}

	gatherer := prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		return []*dto.MetricFamily{mf}, nil
	})

	err := push.New(p.baseURL, MetricName).
		Gatherer(gatherer).
		Format(expfmt.FmtText).
		Client(p.client).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}

	log.Info().
		Str("url", p.baseURL).
		Int("samples", len(mf.Metric)).
		Msg("Metrics pushed to Pushgateway")

	return nil
}

func sample(minute string, value float64) *dto.Metric {
	return &dto.Metric{
		Label: []*dto.LabelPair{
			{Name: proto.String(MinuteLabel), Value: proto.String(minute)},
		},
		Gauge: &dto.Gauge{Value: proto.Float64(value)},
	}
}
