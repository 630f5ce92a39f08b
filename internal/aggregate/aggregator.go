package aggregate

import (
	"iter"
	"strings"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/rs/zerolog/log"
)

// Filter decides which records are counted
type Filter struct {
	Excluded        map[string]struct{} // Addresses never counted
	RefererContains string              // Required referer substring, empty matches all
}

// NewFilter builds a filter from a list of excluded addresses
func NewFilter(refererContains string, excluded []string) Filter {
	set := make(map[string]struct{}, len(excluded))
	for _, addr := range excluded {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			set[addr] = struct{}{}
		}
	}
	return Filter{Excluded: set, RefererContains: refererContains}
}

// Match reports whether the record qualifies for counting
func (f Filter) Match(record *domain.LogRecord) bool {
	if _, excluded := f.Excluded[record.Address]; excluded {
		return false
	}
	return strings.Contains(record.Referer, f.RefererContains)
}

// Aggregator collects distinct addresses per minute for one cycle
type Aggregator struct {
	filter   Filter
	buckets  map[int64]*minuteSet
	accepted int
	skipped  int
}

type minuteSet struct {
	minute    domain.MinuteBucket
	addresses map[string]struct{}
}

// New creates an empty aggregator
func New(filter Filter) *Aggregator {
	return &Aggregator{
		filter:  filter,
		buckets: make(map[int64]*minuteSet),
	}
}

// Add folds one record into the aggregate
// Returns true if the record passed the filter
func (a *Aggregator) Add(record *domain.LogRecord) bool {
	if record == nil || !a.filter.Match(record) {
		a.skipped++
		return false
	}
	a.accepted++

	minute := domain.BucketOf(record.Timestamp)
	set, ok := a.buckets[minute.Key()]
	if !ok {
		set = &minuteSet{minute: minute, addresses: make(map[string]struct{})}
		a.buckets[minute.Key()] = set
	}

	if _, seen := set.addresses[record.Address]; !seen {
		set.addresses[record.Address] = struct{}{}
		log.Info().
			Str("address", record.Address).
			Str("minute", minute.String()).
			Msg("Unique address added")
	}

	return true
}

// Accepted returns the number of records that passed the filter
func (a *Aggregator) Accepted() int {
	return a.accepted
}

// Skipped returns the number of records rejected by the filter
func (a *Aggregator) Skipped() int {
	return a.skipped
}

// Result returns distinct-address counts per touched minute
func (a *Aggregator) Result() *domain.Result {
	result := domain.NewResult()
	for _, set := range a.buckets {
		result.Set(set.minute, len(set.addresses))
	}
	return result
}

// Fold aggregates a finite sequence of records
func Fold(records iter.Seq[*domain.LogRecord], filter Filter) *domain.Result {
	agg := New(filter)
	for record := range records {
		agg.Add(record)
	}
	return agg.Result()
}
