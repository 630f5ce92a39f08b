package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/retry"
	"github.com/rs/zerolog/log"
)

// Client wraps ClickHouse connection
type Client struct {
	conn     clickhouse.Conn
	retryCfg retry.Config
}

// NewClient creates a new ClickHouse client with default retry config
func NewClient(ctx context.Context, host string, port int, database string) (*Client, error) {
	return NewClientWithRetry(ctx, host, port, database, retry.DefaultConfig())
}

// NewClientWithRetry creates a new ClickHouse client with custom retry configuration
func NewClientWithRetry(ctx context.Context, host string, port int, database string, retryCfg retry.Config) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", host, port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: "default",
			Password: "",
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := retry.Do(ctx, retryCfg, func() error {
		return conn.Ping(ctx)
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	log.Info().
		Str("host", host).
		Int("port", port).
		Str("database", database).
		Msg("Connected to ClickHouse")

	return &Client{
		conn:     conn,
		retryCfg: retryCfg,
	}, nil
}

// Exec executes a non-SELECT query with retry logic
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		return c.conn.Exec(ctx, query, args...)
	})
}

// PrepareBatch prepares an INSERT batch with retry logic
func (c *Client) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return retry.DoWithResult(ctx, c.retryCfg, func() (driver.Batch, error) {
		return c.conn.PrepareBatch(ctx, query)
	})
}

// Close closes the connection
func (c *Client) Close() error {
	log.Info().Msg("Closing ClickHouse connection")
	return c.conn.Close()
}
