package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"dubflow/internal/services"
)

func TestConsoleHandlerIncludesSubject(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar, false))

	logger.Info("stage started",
		String(FieldJobID, "0f9b2c44-1111-2222-3333-444455556666"),
		String(FieldStage, "transcribe"),
		Int(FieldChunkIndex, 2),
	)

	out := buf.String()
	if !strings.Contains(out, "Job 0f9b2c44 (transcribe)") {
		t.Fatalf("expected subject in output, got %q", out)
	}
	if !strings.Contains(out, "chunk_index: 2") {
		t.Fatalf("expected chunk index field, got %q", out)
	}
}

func TestJSONHandlerNormalizesKeys(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, levelVar, false))

	logger.Warn("slow chunk", String(FieldStage, "translate"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", payload["level"])
	}
	if payload["msg"] != "slow chunk" {
		t.Fatalf("expected msg key, got %v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatal("expected ts key in JSON output")
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, levelVar, false))

	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithStage(ctx, "synthesize")

	WithContext(ctx, logger).Info("chunk complete")

	out := buf.String()
	if !strings.Contains(out, `"job_id":"job-1"`) || !strings.Contains(out, `"stage":"synthesize"`) {
		t.Fatalf("expected context fields in output, got %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should never be enabled")
	}
}
