package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriter_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "json", "warn")

	l.Info("hidden")
	l.Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewWithWriter_TextAndInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "TEXT", "loud")

	l.Info("hello")
	if !strings.Contains(buf.String(), "level=INFO msg=hello") {
		t.Fatalf("expected text output at info, got %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "text", "").With(string(RequestIDKey), "abc")

	ctx := WithContext(context.Background(), l)
	ctx = WithRequestID(ctx, "abc")

	if FromContext(ctx) != l {
		t.Fatalf("expected logger from context")
	}
	if RequestID(ctx) != "abc" {
		t.Fatalf("expected request id from context")
	}
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}
	FromContext(ctx).Info("x")
	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Fatalf("expected request id attribute, got %q", buf.String())
	}
}
