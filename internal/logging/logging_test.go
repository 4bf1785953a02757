package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLAnnotatesRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithPrincipal(ctx, "alice")

	L(ctx).Info("order released")

	line := buf.String()
	if !strings.Contains(line, `"request_id":"req-123"`) {
		t.Errorf("request_id missing from log line: %s", line)
	}
	if !strings.Contains(line, `"principal":"alice"`) {
		t.Errorf("principal missing from log line: %s", line)
	}
}

func TestLWithoutAnnotations(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	L(WithLogger(context.Background(), logger)).Info("boot")

	line := buf.String()
	if strings.Contains(line, "request_id") || strings.Contains(line, "principal") {
		t.Errorf("unexpected annotations on bare context: %s", line)
	}
}
