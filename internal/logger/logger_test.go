package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// observe swaps the process logger for an in-memory one until the test ends.
func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := log
	log = zap.New(core)
	t.Cleanup(func() { log = prev })
	return logs
}

func TestInit(t *testing.T) {
	prev := log
	t.Cleanup(func() { log = prev })

	for _, env := range []string{"production", "development"} {
		t.Run(env, func(t *testing.T) {
			log = nil
			Init(env)
			require.NotNil(t, log)
			assert.NotPanics(t, Sync)
		})
	}

	t.Run("LazyInit", func(t *testing.T) {
		log = nil
		t.Setenv("APP_ENV", "test")
		assert.NotNil(t, L())
	})

	t.Run("LogLevelOverride", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "warn")
		Init("production")
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	})
}

func TestFromCtx(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID any
		userID    any
	}{
		{name: "Bare", ctx: context.Background()},
		{name: "RequestID", ctx: WithRequestID(context.Background(), "req-1"), requestID: "req-1"},
		{
			name:      "RequestAndUser",
			ctx:       WithUserID(WithRequestID(context.Background(), "req-2"), 42),
			requestID: "req-2",
			userID:    int64(42),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observe(t)

			FromCtx(tt.ctx).Info("order transition applied")

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, tt.requestID, fields["request_id"])
			assert.Equal(t, tt.userID, fields["user_id"])
		})
	}

	t.Run("RequestIDFromEmpty", func(t *testing.T) {
		assert.Empty(t, RequestIDFrom(context.Background()))
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	t.Run("Generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cart", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	})

	t.Run("Propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("X-Request-ID", "edge-7")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "edge-7", seen)
		assert.Equal(t, "edge-7", w.Header().Get("X-Request-ID"))
	})
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{name: "OK", status: http.StatusOK, level: zapcore.InfoLevel},
		{name: "Conflict", status: http.StatusConflict, level: zapcore.InfoLevel},
		{name: "BadGateway", status: http.StatusBadGateway, level: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observe(t)
			handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/payments/webhook", nil))

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			fields := entries[0].ContextMap()
			assert.Equal(t, "/payments/webhook", fields["path"])
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, int64(11), fields["bytes"])
		})
	}

	t.Run("ImplicitOK", func(t *testing.T) {
		logs := observe(t)
		handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, int64(http.StatusOK), logs.TakeAll()[0].ContextMap()["status"])
	})
}
