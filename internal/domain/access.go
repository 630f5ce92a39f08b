package domain

import (
	"sort"
	"time"
)

// LogRecord is one accepted line of the nginx combined access log
type LogRecord struct {
	Address   string
	Timestamp time.Time
	Referer   string
}

// MinuteBucket is a timestamp truncated to the minute.
// The original location is kept so labels render in the log's own zone.
type MinuteBucket time.Time

// BucketOf truncates t to the start of its minute
func BucketOf(t time.Time) MinuteBucket {
	return MinuteBucket(time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location()))
}

// Time returns the bucket as time.Time
func (b MinuteBucket) Time() time.Time {
	return time.Time(b)
}

// Key identifies the bucket by instant, so the same minute written with
// different zone offsets collapses into one bucket
func (b MinuteBucket) Key() int64 {
	return time.Time(b).Unix()
}

// String formats the bucket with its zone offset
func (b MinuteBucket) String() string {
	return time.Time(b).Format("2006-01-02T15:04:05-0700")
}

// BucketCount is a single entry of Result
type BucketCount struct {
	Minute MinuteBucket
	Count  int
}

// Result maps minute buckets to the number of distinct addresses seen in them
// during one cycle. Buckets without qualifying records are absent.
type Result struct {
	counts map[int64]BucketCount
}

// NewResult creates an empty result
func NewResult() *Result {
	return &Result{counts: make(map[int64]BucketCount)}
}

// Set stores the count for a bucket, replacing any previous value
func (r *Result) Set(minute MinuteBucket, count int) {
	if r.counts == nil {
		r.counts = make(map[int64]BucketCount)
	}
	r.counts[minute.Key()] = BucketCount{Minute: minute, Count: count}
}

// Get returns the count for a bucket and whether it is present
func (r *Result) Get(minute MinuteBucket) (int, bool) {
	if r == nil {
		return 0, false
	}
	bc, ok := r.counts[minute.Key()]
	return bc.Count, ok
}

// Len returns the number of buckets
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.counts)
}

// Buckets returns all entries ordered by time
func (r *Result) Buckets() []BucketCount {
	if r == nil {
		return nil
	}
	out := make([]BucketCount, 0, len(r.counts))
	for _, bc := range r.counts {
		out = append(out, bc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Minute.Key() < out[j].Minute.Key()
	})
	return out
}

// Map returns the result keyed by formatted bucket, handy for logs and tests
func (r *Result) Map() map[string]int {
	out := make(map[string]int, r.Len())
	for _, bc := range r.Buckets() {
		out[bc.Minute.String()] = bc.Count
	}
	return out
}
