package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/domain"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Log sources
const (
	SourceSFTP  = "sftp"
	SourceLocal = "local"
)

// Offset backends
const (
	OffsetBackendFile = "file"
	OffsetBackendBolt = "bolt"
)

// Config holds all configuration for the exporter
type Config struct {
	// Remote log access
	LogSource      string // sftp or local
	RemoteHost     string // host or host:port
	RemoteUser     string
	PrivateKeyPath string
	KnownHostsPath string // empty accepts any host key
	SSHTimeout     time.Duration
	LogFilePath    string

	// Filters
	FilterURL   string   // Referer must contain this substring
	ExcludedIPs []string // Addresses never counted

	// Pushgateway
	PushgatewayURL string
	PushTimeout    time.Duration

	// Offset persistence
	OffsetBackend    string
	PositionFilePath string
	OffsetDBPath     string

	// Scheduling
	Interval time.Duration

	// Optional ClickHouse mirror of per-minute counts
	ClickHouseEnabled bool
	ClickHouseHost    string
	ClickHousePort    int
	ClickHouseDB      string
	ClickHouseTable   string

	// Observability
	LogLevel        string
	LogFile         string
	TracingEnabled  bool
	TracingEndpoint string
	TracingProtocol string

	// Optional YAML file with extra settings
	ConfigFile string
}

// FileConfig is the layout of the optional YAML config file
type FileConfig struct {
	FilterURL   string   `yaml:"filter_url"`
	ExcludedIPs []string `yaml:"excluded_ips"`
}

// Load builds configuration from environment variables, then command line
// flags, then the optional YAML file
func Load(args []string) (*Config, error) {
	cfg := fromEnv()

	flagSet := newFlagSet(cfg)
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("%w: unexpected argument: %s", domain.ErrConfiguration, rest[0])
	}

	if cfg.ConfigFile != "" {
		if err := cfg.mergeFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
	}

	cfg.ExcludedIPs = dedupe(cfg.ExcludedIPs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		LogSource:      getEnv("LOG_SOURCE", SourceSFTP),
		RemoteHost:     getEnv("REMOTE_HOST", ""),
		RemoteUser:     getEnv("REMOTE_USER", ""),
		PrivateKeyPath: getEnv("PRIVATE_KEY_PATH", ""),
		KnownHostsPath: getEnv("KNOWN_HOSTS_PATH", ""),
		SSHTimeout:     getEnvDuration("SSH_TIMEOUT", 0),
		LogFilePath:    getEnv("LOG_FILE_PATH", ""),

		FilterURL:   getEnv("FILTER_URL", ""),
		ExcludedIPs: parseList(getEnv("EXCLUDED_IPS", "")),

		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		PushTimeout:    getEnvDuration("PUSH_TIMEOUT", 0),

		OffsetBackend:    getEnv("OFFSET_BACKEND", OffsetBackendFile),
		PositionFilePath: getEnv("POSITION_FILE_PATH", "position.txt"),
		OffsetDBPath:     getEnv("OFFSET_DB_PATH", "offsets.db"),

		Interval: getEnvDuration("INTERVAL", 60*time.Second),

		ClickHouseEnabled: getEnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseHost:    getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:    getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDB:      getEnv("CLICKHOUSE_DB", "logs"),
		ClickHouseTable:   getEnv("CLICKHOUSE_TABLE", "nginx_unique_ips"),

		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_OUTPUT", ""),
		TracingEnabled:  getEnvBool("TRACING_ENABLED", false),
		TracingEndpoint: getEnv("TRACING_ENDPOINT", ""),
		TracingProtocol: getEnv("TRACING_PROTOCOL", "grpc"),

		ConfigFile: getEnv("CONFIG_FILE", ""),
	}
}

// newFlagSet binds flags to cfg; current values act as defaults
func newFlagSet(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("nginx-uniq-exporter", pflag.ContinueOnError)

	fs.StringVar(&cfg.LogSource, "source", cfg.LogSource, "where the log lives: sftp or local")
	fs.StringVar(&cfg.RemoteHost, "remote-host", cfg.RemoteHost, "remote host (host or host:port)")
	fs.StringVar(&cfg.RemoteUser, "remote-user", cfg.RemoteUser, "remote user")
	fs.StringVar(&cfg.PrivateKeyPath, "private-key", cfg.PrivateKeyPath, "path to the SSH private key")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "known_hosts file (empty accepts any host key)")
	fs.DurationVar(&cfg.SSHTimeout, "ssh-timeout", cfg.SSHTimeout, "SSH connect timeout (0 disables)")
	fs.StringVar(&cfg.LogFilePath, "log-file", cfg.LogFilePath, "path to the nginx access log")

	fs.StringVar(&cfg.FilterURL, "filter-url", cfg.FilterURL, "substring the referer must contain")
	fs.StringSliceVar(&cfg.ExcludedIPs, "exclude", cfg.ExcludedIPs, "addresses to ignore (repeatable, comma separated)")

	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", cfg.PushgatewayURL, "Pushgateway base URL")
	fs.DurationVar(&cfg.PushTimeout, "push-timeout", cfg.PushTimeout, "Pushgateway request timeout (0 disables)")

	fs.StringVar(&cfg.OffsetBackend, "offset-backend", cfg.OffsetBackend, "offset storage: file or bolt")
	fs.StringVar(&cfg.PositionFilePath, "position-file", cfg.PositionFilePath, "plain-text offset file")
	fs.StringVar(&cfg.OffsetDBPath, "offset-db", cfg.OffsetDBPath, "BoltDB offset database")

	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "time between cycles")

	fs.BoolVar(&cfg.ClickHouseEnabled, "clickhouse", cfg.ClickHouseEnabled, "mirror counts to ClickHouse")
	fs.StringVar(&cfg.ClickHouseHost, "clickhouse-host", cfg.ClickHouseHost, "ClickHouse host")
	fs.IntVar(&cfg.ClickHousePort, "clickhouse-port", cfg.ClickHousePort, "ClickHouse native port")
	fs.StringVar(&cfg.ClickHouseDB, "clickhouse-db", cfg.ClickHouseDB, "ClickHouse database")
	fs.StringVar(&cfg.ClickHouseTable, "clickhouse-table", cfg.ClickHouseTable, "ClickHouse table")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFile, "log-output", cfg.LogFile, "also write logs to this file")
	fs.BoolVar(&cfg.TracingEnabled, "tracing", cfg.TracingEnabled, "export OpenTelemetry traces")
	fs.StringVar(&cfg.TracingEndpoint, "tracing-endpoint", cfg.TracingEndpoint, "OTLP endpoint")
	fs.StringVar(&cfg.TracingProtocol, "tracing-protocol", cfg.TracingProtocol, "OTLP protocol: grpc or http")

	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "optional YAML file with filter_url and excluded_ips")

	return fs
}

// mergeFile applies the YAML file on top of cfg
// Excluded addresses are added; filter_url only fills an empty value
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if c.FilterURL == "" {
		c.FilterURL = fc.FilterURL
	}
	c.ExcludedIPs = append(c.ExcludedIPs, fc.ExcludedIPs...)

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.LogSource {
	case SourceSFTP:
		if c.RemoteHost == "" {
			return configErr("REMOTE_HOST is required")
		}
		if c.RemoteUser == "" {
			return configErr("REMOTE_USER is required")
		}
		if c.PrivateKeyPath == "" {
			return configErr("PRIVATE_KEY_PATH is required")
		}
	case SourceLocal:
	default:
		return configErr("LOG_SOURCE must be %q or %q", SourceSFTP, SourceLocal)
	}

	if c.LogFilePath == "" {
		return configErr("LOG_FILE_PATH is required")
	}
	if c.PushgatewayURL == "" {
		return configErr("PUSHGATEWAY_URL is required")
	}
	if c.FilterURL == "" {
		return configErr("FILTER_URL is required")
	}

	switch c.OffsetBackend {
	case OffsetBackendFile:
		if c.PositionFilePath == "" {
			return configErr("POSITION_FILE_PATH is required")
		}
	case OffsetBackendBolt:
		if c.OffsetDBPath == "" {
			return configErr("OFFSET_DB_PATH is required")
		}
	default:
		return configErr("OFFSET_BACKEND must be %q or %q", OffsetBackendFile, OffsetBackendBolt)
	}

	if c.Interval <= 0 {
		return configErr("INTERVAL must be positive")
	}
	if c.SSHTimeout < 0 || c.PushTimeout < 0 {
		return configErr("timeouts must not be negative")
	}

	if c.ClickHouseEnabled {
		if c.ClickHouseHost == "" {
			return configErr("CLICKHOUSE_HOST is required")
		}
		if c.ClickHousePort <= 0 || c.ClickHousePort > 65535 {
			return configErr("CLICKHOUSE_PORT must be between 1 and 65535")
		}
		if c.ClickHouseDB == "" || c.ClickHouseTable == "" {
			return configErr("CLICKHOUSE_DB and CLICKHOUSE_TABLE are required")
		}
	}

	return nil
}

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, fmt.Sprintf(format, args...))
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// parseList parses a comma-separated list
func parseList(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
