package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNew_WritesServiceAndRunID(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "backtest", slog.LevelInfo)

	ctx := WithRunID(context.Background(), "EURUSD-1")
	log.Info("run finished", Attrs(ctx)...)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if rec["service"] != "backtest" {
		t.Errorf("service = %v", rec["service"])
	}
	if rec["run_id"] != "EURUSD-1" {
		t.Errorf("run_id = %v", rec["run_id"])
	}
}

func TestRunID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No run ID set
	if id := RunID(ctx); id != "" {
		t.Errorf("expected empty run id, got %q", id)
	}

	ctx = WithRunID(ctx, "test-run-123")
	if id := RunID(ctx); id != "test-run-123" {
		t.Errorf("expected 'test-run-123', got %q", id)
	}
}

func TestNewRunID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	id := NewRunID("NIFTY", ts)

	if !strings.HasPrefix(id, "NIFTY-") {
		t.Errorf("expected run id to start with 'NIFTY-', got %s", id)
	}
	if !strings.Contains(id, "123456789") {
		t.Errorf("expected run id to contain nanoseconds, got %s", id)
	}
}

func TestAttrs(t *testing.T) {
	if attrs := Attrs(context.Background()); attrs != nil {
		t.Errorf("expected nil attrs when no run id, got %v", attrs)
	}
	if attrs := Attrs(WithRunID(context.Background(), "abc-123")); len(attrs) != 1 {
		t.Fatalf("expected one attr, got %v", attrs)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected a logger")
	}
	l := slog.Default()
	if OrDiscard(l) != l {
		t.Error("expected the given logger back")
	}
	// must not panic
	Discard().Error("dropped")
}
