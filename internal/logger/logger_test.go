package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fd1az/arbitrage-detector/internal/logger"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, logger.LevelWarn, "test", nil)

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key=value") {
		t.Errorf("expected warn record with attrs, got %q", out)
	}
	if !strings.Contains(out, "service=test") {
		t.Errorf("expected service attr, got %q", out)
	}
}

func TestLogger_JSONWithTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewJSON(&buf, logger.LevelDebug, "svc", func(context.Context) string { return "abc123" })

	log.Debug(context.Background(), "hello", "n", 1)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("record is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "hello" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["trace_id"] != "abc123" {
		t.Errorf("trace_id = %v", rec["trace_id"])
	}
	if src, _ := rec["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("source = %v, want call site", rec["source"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.Level
	}{
		{"debug", logger.LevelDebug},
		{"INFO", logger.LevelInfo},
		{"warning", logger.LevelWarn},
		{"error", logger.LevelError},
		{"", logger.LevelInfo},
		{"verbose", logger.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := logger.ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
