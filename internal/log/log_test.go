package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewHandlerFormats(t *testing.T) {
	for _, format := range []string{"text", "json", "pretty"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{Level: slog.LevelInfo, Format: format, Component: ComponentIngest, Output: &buf})
			logger.Info("Receipt processed", FieldReceiptID, 42)
			logger.Debug("hidden")

			out := buf.String()
			if !strings.Contains(out, "Receipt processed") {
				t.Errorf("missing message in %q", out)
			}
			if !strings.Contains(out, "42") {
				t.Errorf("missing receipt id in %q", out)
			}
			if strings.Contains(out, "hidden") {
				t.Errorf("debug line leaked at info level: %q", out)
			}
		})
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf}).WithComponent(ComponentWorker)
	logger.Warn("slow", FieldBucket, "week")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}
	if line[FieldComponent] != ComponentWorker {
		t.Errorf("component = %v, want %s", line[FieldComponent], ComponentWorker)
	}
	if line[FieldBucket] != "week" {
		t.Errorf("bucket = %v", line[FieldBucket])
	}
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().
		WithReceipt(7, "processed", 2).
		WithRange("30d", "day").
		WithError(errors.New("boom")).
		WithError(nil)

	if f[FieldReceiptID] != int64(7) || f[FieldExpenseCount] != 2 {
		t.Errorf("unexpected receipt fields: %v", f)
	}
	if f[FieldRange] != "30d" || f[FieldBucket] != "day" {
		t.Errorf("unexpected range fields: %v", f)
	}
	if f[FieldError] != "boom" {
		t.Errorf("error = %v", f[FieldError])
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Errorf("ToSlice() length = %d, want %d", got, 2*len(f))
	}
}

func TestWithLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf}).With(FieldRequestID, "req-1")

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("inside")

	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Errorf("request id missing from %q", buf.String())
	}
	if l := FromContext(context.Background()); l == nil || l.Logger == nil {
		t.Errorf("expected a default logger, got %+v", l)
	}
}

func TestLogReceiptProcessed(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "json", Output: &buf}))

	sl.LogReceiptProcessed(context.Background(), 9, "processed", 2, "1700.00", 1500*time.Millisecond)

	out := buf.String()
	for _, want := range []string{
		`"component":"ingest"`, `"receipt_id":9`, `"receipt_status":"processed"`,
		`"expenses":2`, `"total":"1700.00"`, `"duration_ms":1500`, `"operation":"process"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "json", Output: &buf}))

	sl.LogError(context.Background(), "Chart render failed", errors.New("boom"), ComponentHTTP, OpChart,
		NewFields().WithRange("30d", "day"))

	out := buf.String()
	for _, want := range []string{
		`"level":"ERROR"`, `"component":"http"`, `"error":"boom"`, `"operation":"chart"`, `"range":"30d"`, `"bucket":"day"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{404, "WARN"},
		{500, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(New(Config{Format: "json", Output: &buf}))
		r := httptest.NewRequest(http.MethodGet, "/api/receipts", nil)
		sl.LogHTTPEnd(context.Background(), r, tt.status, 3, "10.0.0.1")

		if !strings.Contains(buf.String(), `"level":"`+tt.level+`"`) {
			t.Errorf("status %d logged as %q, want level %s", tt.status, buf.String(), tt.level)
		}
	}
}
