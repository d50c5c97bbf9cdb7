package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// capture redirects the global logger into a buffer for assertions.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	InitWithHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &buf
}

func TestComponentAttribute(t *testing.T) {
	buf := capture(t)

	Component("archive").Info("sweep finished")

	if !strings.Contains(buf.String(), "component=archive") {
		t.Errorf("missing component attribute: %s", buf.String())
	}
}

func TestWithAttributes(t *testing.T) {
	buf := capture(t)

	With("app", 7).Info("handled")

	if !strings.Contains(buf.String(), "app=7") {
		t.Errorf("missing attribute: %s", buf.String())
	}
}

func TestWithContextEnrichment(t *testing.T) {
	buf := capture(t)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithAppID(ctx, 42)
	WithContext(ctx).Info("handled")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-1") {
		t.Errorf("missing request id: %s", out)
	}
	if !strings.Contains(out, "app=42") {
		t.Errorf("missing app id: %s", out)
	}
}

func TestWithContextEmpty(t *testing.T) {
	buf := capture(t)

	WithContext(context.Background()).Info("handled")

	if strings.Contains(buf.String(), "request_id=") {
		t.Errorf("unexpected request id on bare context: %s", buf.String())
	}
}
