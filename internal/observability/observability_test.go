package observability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{input: "debug", want: zerolog.DebugLevel},
		{input: "INFO", want: zerolog.InfoLevel},
		{input: "warning", want: zerolog.WarnLevel},
		{input: " error ", want: zerolog.ErrorLevel},
		{input: "verbose", want: zerolog.InfoLevel},
		{input: "", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitLogger_File(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	}()

	path := filepath.Join(t.TempDir(), "exporter.log")
	closer := InitLogger("debug", path)

	log.Debug().Str("address", "1.2.3.4").Msg("probe message")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "probe message") || !strings.Contains(string(data), `"address":"1.2.3.4"`) {
		t.Errorf("log file missing record: %s", data)
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitTracer_BadProtocol(t *testing.T) {
	if _, err := InitTracer(TracerConfig{Enabled: true, Protocol: "carrier-pigeon", ServiceName: "test"}); err == nil {
		t.Error("expected error for unsupported protocol")
	}
}
