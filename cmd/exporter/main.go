package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/SteelMorgan/nginx-uniq-exporter/internal/aggregate"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/clickhouse"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/config"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/observability"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/offset"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/publisher"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/remote"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/service"
	"github.com/SteelMorgan/nginx-uniq-exporter/internal/writer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logCloser := observability.InitLogger(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()

	log.Info().
		Str("version", version).
		Str("source", cfg.LogSource).
		Str("log_file", cfg.LogFilePath).
		Msg("Starting nginx unique IP exporter")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "nginx-uniq-exporter",
		ServiceVersion: version,
		Endpoint:       cfg.TracingEndpoint,
		Protocol:       cfg.TracingProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	} else {
		defer shutdownTracer(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openOffsetStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	dialer, source := newDialer(cfg)

	var mirror writer.ResultWriter
	if cfg.ClickHouseEnabled {
		mirror, err = openMirror(ctx, cfg)
		if err != nil {
			// The mirror is optional; the Pushgateway remains the primary sink
			log.Error().Err(err).Msg("ClickHouse mirror unavailable, continuing without it")
		} else {
			defer mirror.Close()
		}
	}

	cycle, err := service.NewCycle(service.CycleConfig{
		Dialer:    dialer,
		Store:     store,
		Publisher: publisher.New(cfg.PushgatewayURL, publisher.WithHTTPClient(&http.Client{Timeout: cfg.PushTimeout})),
		Mirror:    mirror,
		LogPath:   cfg.LogFilePath,
		Source:    source,
		Filter:    aggregate.NewFilter(cfg.FilterURL, cfg.ExcludedIPs),
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("filter_url", cfg.FilterURL).
		Strs("excluded_ips", cfg.ExcludedIPs).
		Dur("interval", cfg.Interval).
		Msg("Exporter configured")

	err = service.NewScheduler(cycle, cfg.Interval).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("Exporter stopped")
	return nil
}

func openOffsetStore(cfg *config.Config) (offset.Store, error) {
	if cfg.OffsetBackend == config.OffsetBackendBolt {
		return offset.NewBoltDBStore(cfg.OffsetDBPath, cfg.LogFilePath)
	}
	return offset.NewFileStore(cfg.PositionFilePath), nil
}

func newDialer(cfg *config.Config) (remote.Dialer, string) {
	if cfg.LogSource == config.SourceLocal {
		return remote.LocalDialer{}, cfg.LogFilePath
	}

	host := cfg.RemoteHost
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	return remote.NewSFTPDialer(remote.SFTPConfig{
		Host:           cfg.RemoteHost,
		User:           cfg.RemoteUser,
		PrivateKeyPath: cfg.PrivateKeyPath,
		KnownHostsPath: cfg.KnownHostsPath,
		Timeout:        cfg.SSHTimeout,
	}), host + ":" + cfg.LogFilePath
}

func openMirror(ctx context.Context, cfg *config.Config) (writer.ResultWriter, error) {
	client, err := clickhouse.NewClient(ctx, cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDB)
	if err != nil {
		return nil, err
	}

	w, err := writer.NewClickHouseWriter(ctx, client, cfg.ClickHouseDB, cfg.ClickHouseTable)
	if err != nil {
		client.Close()
		return nil, err
	}
	return w, nil
}
