package observability_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arclane/conduit/pkg/config"
	"github.com/arclane/conduit/pkg/observability"
)

func TestNewDisabledReturnsNoopProvider(t *testing.T) {
	p, err := observability.New(context.Background(), config.ObservabilityConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	_, span := p.StartAgentSpan(context.Background(), "planning", "sess-1", 0)
	require.NotNil(t, span)
	observability.EndSpan(span, 10, nil)

	p.RecordToolCall(context.Background(), "read_file", time.Millisecond, false)
	p.RecordLoopExhausted(context.Background(), "deep")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.MetricsHandler().ServeHTTP(rec, req)
	require.Equal(t, 503, rec.Code)
}

func TestNewEnabledRecordsToolCallMetrics(t *testing.T) {
	p, err := observability.New(context.Background(), config.ObservabilityConfig{
		Enabled:     true,
		ServiceName: "conduit-test",
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	p.ObserveToolCall(context.Background(), "read_file", 5*time.Millisecond, false)
	p.ObserveToolCall(context.Background(), "read_file", 5*time.Millisecond, true)
	p.RecordLoopExhausted(context.Background(), "deep")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.MetricsHandler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, "conduit_tool_calls_total")
	require.Contains(t, body, "conduit_controller_loop_exhausted_total")
}

func TestNilProviderDegradesToNoop(t *testing.T) {
	var p *observability.Provider

	_, span := p.StartAgentSpan(context.Background(), "planning", "sess-1", 0)
	require.NotNil(t, span)
	observability.EndSpan(span, 0, nil)

	p.RecordToolCall(context.Background(), "read_file", time.Millisecond, false)
	p.RecordLoopExhausted(context.Background(), "deep")
	p.ObserveToolCall(context.Background(), "read_file", time.Millisecond, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.MetricsHandler().ServeHTTP(rec, req)
	require.Equal(t, 503, rec.Code)

	require.NoError(t, p.Shutdown(context.Background()))
}
