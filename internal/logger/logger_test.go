package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})).With("component", "cache")

	l.Debug("hidden")
	l.Info("refetched", "key", "tasks")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	for _, want := range []string{"INF", "cache", "refetched", "key=tasks"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "qisumi.log")
	closer, err := Init(Options{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	API.Info("request", "path", "/tasks")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"component":"api"`) {
		t.Errorf("log %q missing component", data)
	}
	setBase(discard())
}
