package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/medintell/oncochat/backend/internal/config"
)

func TestInitWritesRotatingFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	logPath := filepath.Join(t.TempDir(), "logs", "relay.log")
	logger, err := Init(config.LogConfig{Level: "debug", Format: "json", File: logPath})
	if err != nil {
		t.Fatalf("Init err: %v", err)
	}

	logger.Debug("retrieval finished", slog.Int("documents", 3))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile err: %v", err)
	}
	if !strings.Contains(string(data), "retrieval finished") {
		t.Fatalf("expected log line, got: %s", data)
	}
	if !strings.Contains(string(data), `"documents":3`) {
		t.Fatalf("expected structured attribute, got: %s", data)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
