package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/nikhilbhutani/dialoguecast/internal/config"
)

func TestSetupWithoutTracing(t *testing.T) {
	shutdown, handler, err := Setup(context.Background(), config.TelemetryConfig{Exporter: "none", ServiceName: "test"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()
	if handler == nil {
		t.Fatal("expected metrics handler")
	}

	counter, err := otel.Meter("test").Int64Counter("renders_total")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(context.Background(), 1)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "renders_total") {
		t.Fatalf("expected counter in metrics output:\n%s", rec.Body.String())
	}
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	if _, _, err := Setup(context.Background(), config.TelemetryConfig{Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
	if _, _, err := Setup(context.Background(), config.TelemetryConfig{Exporter: "otlp"}); err == nil {
		t.Fatal("expected error for otlp without endpoint")
	}
}
