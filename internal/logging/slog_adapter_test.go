package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewSlogHandlerWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})

	slogger := slog.New(NewSlogHandler())
	slogger.Info("provider sync started", "provider", "acme-bank")

	out := buf.String()
	if !strings.Contains(out, "provider sync started") {
		t.Fatalf("expected message in output: %s", out)
	}
	if !strings.Contains(out, "acme-bank") {
		t.Fatalf("expected attribute in output: %s", out)
	}
}

func TestSlogHandlerEnabledRespectsLevel(t *testing.T) {
	Init(Config{Level: "error", Format: "json", Output: &bytes.Buffer{}})
	h := NewSlogHandler()
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info level to be disabled when global level is error")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected error level to be enabled")
	}
}

func TestSlogHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})

	h := NewSlogHandler().WithAttrs([]slog.Attr{slog.String("component", "sync")}).WithGroup("http")
	slogger := slog.New(h)
	slogger.Info("request", "status", 200)

	out := buf.String()
	if !strings.Contains(out, `"component":"sync"`) {
		t.Fatalf("expected component attr in output: %s", out)
	}
	if !strings.Contains(out, `"http.status":200`) {
		t.Fatalf("expected grouped status attr in output: %s", out)
	}
}
