package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartAgentSpan opens a span for one agent stage's RunStream call
// (§9 "conduit.agent.<name>"). The caller must call the returned
// trace.Span's End itself after recording outcome attributes.
func (p *Provider) StartAgentSpan(ctx context.Context, agentName, sessionID string, iteration int) (context.Context, trace.Span) {
	tracer := p.tracerOrNoop()
	return tracer.Start(ctx, SpanAgentPrefix+agentName, trace.WithAttributes(
		attribute.String(AttrAgentName, agentName),
		attribute.String(AttrSessionID, sessionID),
		attribute.Int(AttrIteration, iteration),
	))
}

// StartToolSpan opens a span for one tool call (§9
// "conduit.tool.<name>").
func (p *Provider) StartToolSpan(ctx context.Context, toolName, sessionID string) (context.Context, trace.Span) {
	tracer := p.tracerOrNoop()
	return tracer.Start(ctx, SpanToolPrefix+toolName, trace.WithAttributes(
		attribute.String(AttrToolName, toolName),
		attribute.String(AttrSessionID, sessionID),
	))
}

func (p *Provider) tracerOrNoop() trace.Tracer {
	if p == nil || p.tracer == nil {
		return trace.NewNoopTracerProvider().Tracer("conduit")
	}
	return p.tracer
}

// EndSpan records err (if any) and the aggregate token count onto span,
// then ends it. Called by the controller's runStage; tool calls are
// recorded through ObserveToolCall instead.
func EndSpan(span trace.Span, tokens int, err error) {
	if tokens > 0 {
		span.SetAttributes(attribute.Int(AttrTokensTotal, tokens))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordToolCall records one tool call's latency and outcome into the
// tool-call histogram/counter pair, and is always safe to call even
// when metrics are disabled.
func (p *Provider) RecordToolCall(ctx context.Context, toolName string, duration time.Duration, isError bool) {
	if p == nil || p.metrics == nil {
		return
	}
	p.metrics.recordToolCall(ctx, toolName, duration, isError)
}

// ObserveToolCall implements tool.Observer: it opens and immediately
// closes a span covering a call that has already completed (the
// manager only knows the outcome after the fact) and records the same
// outcome into the Prometheus pair. Structural typing means pkg/tool
// never imports this package.
func (p *Provider) ObserveToolCall(ctx context.Context, name string, duration time.Duration, isError bool) {
	if p == nil {
		return
	}
	start := time.Now().Add(-duration)
	_, span := p.tracerOrNoop().Start(ctx, SpanToolPrefix+name, trace.WithTimestamp(start))
	span.SetAttributes(attribute.String(AttrToolName, name))
	if isError {
		callErr := fmt.Errorf("tool call failed")
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
	}
	span.End(trace.WithTimestamp(start.Add(duration)))
	p.RecordToolCall(ctx, name, duration, isError)
}

// RecordLoopExhausted increments the loop-exhaustion counter (§4.6
// "max_loop_count reached"), safe to call when metrics are disabled.
func (p *Provider) RecordLoopExhausted(ctx context.Context, mode string) {
	if p == nil || p.metrics == nil {
		return
	}
	p.metrics.recordLoopExhausted(ctx, mode)
}
