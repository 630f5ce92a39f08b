package writer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/google/uuid"
)

type fakeBatch struct {
	driver.Batch
	rows    [][]interface{}
	sent    bool
	aborted bool
}

func (b *fakeBatch) Append(v ...interface{}) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

type fakeExecutor struct {
	queries  []string
	batch    *fakeBatch
	batchErr error
	closed   bool
}

func (e *fakeExecutor) Exec(ctx context.Context, query string, args ...interface{}) error {
	e.queries = append(e.queries, query)
	return nil
}

func (e *fakeExecutor) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	e.queries = append(e.queries, query)
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	e.batch = &fakeBatch{}
	return e.batch, nil
}

func (e *fakeExecutor) Close() error {
	e.closed = true
	return nil
}

func TestClickHouseWriter(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}

	w, err := NewClickHouseWriter(ctx, exec, "logs", "nginx_unique_ips")
	if err != nil {
		t.Fatalf("NewClickHouseWriter() error = %v", err)
	}
	if len(exec.queries) != 1 || !strings.Contains(exec.queries[0], "CREATE TABLE IF NOT EXISTS logs.nginx_unique_ips") {
		t.Fatalf("expected DDL, got %v", exec.queries)
	}

	result := domain.NewResult()
	zone := time.FixedZone("", 3*60*60)
	result.Set(domain.BucketOf(time.Date(2024, 1, 1, 10, 1, 30, 0, zone)), 4)
	result.Set(domain.BucketOf(time.Date(2024, 1, 1, 10, 0, 10, 0, zone)), 2)

	cycle := CycleInfo{ID: uuid.NewString(), Source: "web1:/var/log/nginx/access.log", Finished: time.Now()}
	if err := w.WriteResult(ctx, cycle, result); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}

	if exec.batch == nil || !exec.batch.sent {
		t.Fatal("expected batch to be sent")
	}
	if len(exec.batch.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(exec.batch.rows))
	}
	if got := exec.batch.rows[0][4].(uint32); got != 2 {
		t.Errorf("expected first row (earliest minute) count 2, got %d", got)
	}

	if err := w.Close(); err != nil || !exec.closed {
		t.Errorf("Close() error = %v, closed = %v", err, exec.closed)
	}
}

func TestClickHouseWriter_EmptyResult(t *testing.T) {
	exec := &fakeExecutor{}
	w, err := NewClickHouseWriter(context.Background(), exec, "logs", "t")
	if err != nil {
		t.Fatalf("NewClickHouseWriter() error = %v", err)
	}

	if err := w.WriteResult(context.Background(), CycleInfo{ID: "not-a-uuid"}, domain.NewResult()); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}
	if exec.batch != nil {
		t.Error("expected no batch for empty result")
	}
}

func TestClickHouseWriter_Errors(t *testing.T) {
	if _, err := NewClickHouseWriter(context.Background(), &fakeExecutor{}, "logs", "drop table;"); err == nil {
		t.Error("expected error for invalid identifier")
	}

	exec := &fakeExecutor{batchErr: errors.New("code: 60, table missing")}
	w, err := NewClickHouseWriter(context.Background(), exec, "logs", "t")
	if err != nil {
		t.Fatalf("NewClickHouseWriter() error = %v", err)
	}

	result := domain.NewResult()
	result.Set(domain.BucketOf(time.Now()), 1)
	if err := w.WriteResult(context.Background(), CycleInfo{}, result); err == nil {
		t.Error("expected error when batch cannot be prepared")
	}
}
