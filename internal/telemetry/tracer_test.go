package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracer(t *testing.T) {
	var spans, logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	shutdown, err := InitTracer("lifecycle-gateway-test", &spans, logger)
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "unit-span")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}

	if !strings.Contains(spans.String(), "unit-span") {
		t.Errorf("expected exported span, got: %s", spans.String())
	}
	if !strings.Contains(logs.String(), "OpenTelemetry initialized") {
		t.Errorf("expected init log, got: %s", logs.String())
	}
}
