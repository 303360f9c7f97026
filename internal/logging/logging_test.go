package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept", OpportunityID("opp-1"), Float("score", 92.5), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["msg"] != "kept" || rec["opportunity_id"] != "opp-1" || rec["score"] != 92.5 || rec["error"] != "boom" {
		t.Fatalf("record = %v", rec)
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "text", Output: &buf}).With(SatelliteID("sat-1"))
	log.Info(context.Background(), "hello", Bool("cached", true))

	out := buf.String()
	if !strings.Contains(out, "satellite_id=sat-1") || !strings.Contains(out, "cached=true") {
		t.Fatalf("output = %q", out)
	}
}

func TestOpenFansOutToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "engine.log")
	log, closeFn, err := Open(Config{Format: "text", File: path, Output: &console})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	log.Info(context.Background(), "validated", Int("findings", 3))
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(console.String(), "findings=3") {
		t.Fatalf("console = %q", console.String())
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatalf("log file is empty")
	}
	var rec map[string]any
	if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
		t.Fatalf("file record is not JSON: %v", err)
	}
	if rec["findings"] != float64(3) {
		t.Fatalf("file record = %v", rec)
	}
}

func TestOpenBadPath(t *testing.T) {
	_, _, err := Open(Config{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	if err == nil {
		t.Fatalf("expected error for unwritable log path")
	}
}

func TestEnsureRequestID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("request id %q is not a UUID: %v", id, err)
	}
	ctx2, id2 := EnsureRequestID(ctx)
	if id2 != id || ctx2 != ctx {
		t.Fatalf("EnsureRequestID replaced an existing id")
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("RequestIDFromContext(empty) = %q", got)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background(), nil) == nil {
		t.Fatalf("expected no-op fallback")
	}
	var buf bytes.Buffer
	base := New(Config{Output: &buf})
	ctx, reqLog := WithRequestLogger(context.Background(), base)
	ctx = ContextWithLogger(ctx, reqLog)

	LoggerFromContext(ctx, Noop()).Info(ctx, "scoped")
	if want := "request_id=" + RequestIDFromContext(ctx); !strings.Contains(buf.String(), want) {
		t.Fatalf("output %q missing %q", buf.String(), want)
	}
}
