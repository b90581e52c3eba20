package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/atelier-billing/pkg/httpmiddleware"
)

func TestServerMiddlewares_PanicLoggedWithRequestID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, logs := observer.New(zapcore.ErrorLevel)
	cfg := &Config{
		RateLimit: RateLimitConfig{Rate: 100, Burst: 100},
		CORS:      CORSConfig{Origins: []string{"*"}},
	}
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	h := httpmiddleware.Wrap(panicking,
		serverMiddlewares(ctx, zap.New(core), metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider(), cfg)...,
	)

	req := httptest.NewRequest(http.MethodGet, "/api/quote", nil)
	req.Header.Set("X-Request-ID", "req-panic")
	w := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(w, req) })

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-panic", w.Header().Get("X-Request-ID"))

	entries := logs.FilterMessage("Panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-panic", entries[0].ContextMap()["request_id"])
}
