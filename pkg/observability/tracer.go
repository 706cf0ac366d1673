// Package observability wraps every agent stage and tool call in an
// OpenTelemetry span and records Prometheus counters/histograms for
// tool-call latency and loop-exhaustion events (§9 "Observability
// hooks"). It is ambient instrumentation, not a feature path: every
// exported entry point degrades to a no-op tracer/no-op metrics set
// when disabled, so callers never branch on whether observability is
// configured.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/arclane/conduit/pkg/config"
)

// Attribute and span-name constants shared by every call site that
// instruments a stage (§9).
const (
	AttrSessionID   = "conduit.session_id"
	AttrIteration   = "conduit.iteration"
	AttrTokensTotal = "conduit.tokens.total"
	AttrToolName    = "conduit.tool.name"
	AttrAgentName   = "conduit.agent.name"

	SpanAgentPrefix = "conduit.agent."
	SpanToolPrefix  = "conduit.tool."
)

// Provider bundles the tracer and metrics this engine instruments with.
// The zero value is safe to use: every method degrades to a no-op.
type Provider struct {
	tracer  trace.Tracer
	metrics *Metrics
	tp      *sdktrace.TracerProvider
}

// New builds a Provider from cfg. When cfg.Enabled is false it returns
// a Provider backed by OpenTelemetry's own no-op tracer and nil
// metrics, so RecordToolCall/RecordLoopExhausted are safe to call
// unconditionally from the controller and tool manager.
func New(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("conduit")}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: build trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metrics, err := newMetrics(cfg)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return &Provider{
		tracer:  tp.Tracer("conduit"),
		metrics: metrics,
		tp:      tp,
	}, nil
}

// Shutdown flushes the trace exporter and meter provider. Safe to call
// on a disabled Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	if p.metrics != nil {
		return p.metrics.shutdown(ctx)
	}
	return nil
}

// MetricsHandler returns the Prometheus exposition handler, or a
// handler reporting 503 when metrics are disabled.
func (p *Provider) MetricsHandler() http.Handler {
	if p == nil || p.metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return p.metrics.Handler()
}
