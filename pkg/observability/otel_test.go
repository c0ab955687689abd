package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, io.Discard))
	require.NoError(t, err)
	assert.Nil(t, providers)
}

func TestInitOTel_MissingEndpoint(t *testing.T) {
	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true}, NewLogger(InfoLevel, io.Discard))
	assert.Error(t, err)
}

func TestShutdownOTel_Nil(t *testing.T) {
	assert.NoError(t, ShutdownOTel(context.Background(), nil, NewLogger(InfoLevel, io.Discard)))
}

func TestShutdownOTel_TracerOnly(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	err := ShutdownOTel(context.Background(), &OTelProviders{TracerProvider: tp}, NewLogger(InfoLevel, io.Discard))
	assert.NoError(t, err)
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	t.Run("no span", func(t *testing.T) {
		logger := NewLogger(InfoLevel, io.Discard)
		assert.Same(t, logger, UpdateLoggerWithTraceContext(context.Background(), logger))
	})

	t.Run("recording span", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		defer tp.Shutdown(context.Background())

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		var buf bytes.Buffer
		UpdateLoggerWithTraceContext(ctx, NewLogger(InfoLevel, &buf)).Info("traced")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	})
}

func TestShutdownManager_RunsInReverseOrder(t *testing.T) {
	var order []string
	sm := NewShutdownManager(NewLogger(ErrorLevel, io.Discard), nil, time.Second)
	sm.RegisterShutdownFunc("db", func(ctx context.Context) error {
		order = append(order, "db")
		return nil
	})
	sm.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		order = append(order, "otel")
		return nil
	})

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"otel", "db"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, io.Discard), nil, time.Second)
	sm.RegisterShutdownFunc("redis", func(ctx context.Context) error { return io.ErrClosedPipe })
	called := false
	sm.RegisterShutdownFunc("db", func(ctx context.Context) error {
		called = true
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.True(t, called)
}

func TestShutdownManager_WaitForShutdownOnContext(t *testing.T) {
	srv := &http.Server{Handler: http.NotFoundHandler()}

	sm := NewShutdownManager(NewLogger(ErrorLevel, io.Discard), srv, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, sm.WaitForShutdown(ctx))
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	handler := RecoveryMiddleware(NewLogger(InfoLevel, &buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "PANIC recovered")
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "worker")
		panic("boom")
	}()

	assert.Contains(t, buf.String(), `"context":"worker"`)
}
