package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestTelemetry_PrometheusScrape(t *testing.T) {
	prevMeter, prevTracer := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMeter)
		otel.SetTracerProvider(prevTracer)
	})

	tel, err := initTelemetry(true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	require.NotNil(t, tel.handler)
	assert.False(t, tel.tracing)

	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, discardLogger(), appOptions{metrics: tel.metrics})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.engine.Run(a.context(context.Background()), "t1", "Let me talk to a human")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	tel.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "flowdesk_graph_runs_total")
	assert.Contains(t, body, `flowdesk_route_decisions_total{`)
	assert.Contains(t, body, `route="escalate"`)
	assert.Contains(t, body, "flowdesk_checkpoint_size")
}

func TestTelemetry_StdoutTraces(t *testing.T) {
	prevTracer := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prevTracer) })

	var out bytes.Buffer
	tel, err := initTelemetry(false, &out)
	require.NoError(t, err)
	assert.True(t, tel.tracing)
	assert.Nil(t, tel.handler)

	a, err := newApp(context.Background(), testConfig(t), discardLogger(), appOptions{tracing: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.engine.Run(a.context(context.Background()), "t1", "Let me talk to a human")
	require.NoError(t, err)

	// Shutdown flushes the batcher.
	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Contains(t, out.String(), "flowdesk.run")
	assert.Contains(t, out.String(), "flowdesk.node.triage")
}
