package ttsqueue

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type engineMetrics struct {
	attempts metric.Int64Counter
	retries  metric.Int64Counter
	failures metric.Int64Counter
}

func newEngineMetrics(meter metric.Meter) engineMetrics {
	fallback := noop.NewMeterProvider().Meter(instrumentation)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			slog.Warn("failed to create counter", "name", name, "error", err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	return engineMetrics{
		attempts: counter("tts.synthesis.attempts", "Synthesis calls made to providers"),
		retries:  counter("tts.synthesis.retries", "Synthesis calls retried after rate limiting"),
		failures: counter("tts.synthesis.failures", "Requests that ended in failure"),
	}
}
