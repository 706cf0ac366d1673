package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/arclane/conduit/pkg/config"
)

// Metrics is the narrow surface §9 calls for: tool-call latency and
// loop-exhaustion events. Instruments are created through the OTel
// metrics API so the same SDK that produces traces also produces
// metrics; the `exporters/prometheus` bridge registers them on a
// private prometheus.Registry rather than the global one, so test runs
// never collide across packages.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	toolCallDuration metric.Float64Histogram
	toolCallsTotal   metric.Int64Counter
	loopExhausted    metric.Int64Counter
}

func newMetrics(cfg config.ObservabilityConfig) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("conduit")

	toolCallDuration, err := meter.Float64Histogram(
		"conduit_tool_call_duration_seconds",
		metric.WithDescription("Tool call latency in seconds."),
	)
	if err != nil {
		return nil, err
	}
	toolCallsTotal, err := meter.Int64Counter(
		"conduit_tool_calls_total",
		metric.WithDescription("Total tool calls by outcome."),
	)
	if err != nil {
		return nil, err
	}
	loopExhausted, err := meter.Int64Counter(
		"conduit_controller_loop_exhausted_total",
		metric.WithDescription("Count of runs that hit max_loop_count before every task reached a terminal status."),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		registry:         registry,
		provider:         provider,
		toolCallDuration: toolCallDuration,
		toolCallsTotal:   toolCallsTotal,
		loopExhausted:    loopExhausted,
	}, nil
}

func (m *Metrics) recordToolCall(ctx context.Context, toolName string, duration time.Duration, isError bool) {
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("outcome", outcome),
	)
	m.toolCallDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCallsTotal.Add(ctx, 1, attrs)
}

func (m *Metrics) recordLoopExhausted(ctx context.Context, mode string) {
	m.loopExhausted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// Handler serves the Prometheus exposition format for this Metrics'
// private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
