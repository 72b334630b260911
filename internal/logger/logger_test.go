package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "txengine", func(context.Context) string { return "abc123" })

	log.Info(context.Background(), "transport connected", "chain_id", 5)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}

	if entry["msg"] != "transport connected" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "txengine" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["trace_id"] != "abc123" {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}
	if file, _ := entry["file"].(string); !strings.HasPrefix(file, "logger_test.go:") {
		t.Errorf("file = %v, want caller location", entry["file"])
	}
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "txengine", nil)

	log.Debug(context.Background(), "dropped")
	log.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	log.Warn(context.Background(), "kept")
	if !strings.Contains(buf.String(), `"kept"`) {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "txengine", nil).With("component", "txqueue")

	log.Debug(context.Background(), "popped")

	if !strings.Contains(buf.String(), `"component":"txqueue"`) {
		t.Fatalf("expected component attr, got %q", buf.String())
	}
}
