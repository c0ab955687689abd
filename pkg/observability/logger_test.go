package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		assert.NotZero(t, buf.Len())

		buf.Reset()
		logger.Error("error message")
		assert.NotZero(t, buf.Len())
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("key", "value").
		WithFields(map[string]interface{}{"count": 42}).
		WithError(errors.New("boom")).
		Info("message")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, float64(42), entry["count"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	assert.Same(t, logger, logger.WithError(nil))
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"Debugf", func() { logger.Debugf("test %s %d", "string", 42) }, "test string 42"},
		{"Infof", func() { logger.Infof("test %d", 123) }, "test 123"},
		{"Warnf", func() { logger.Warnf("warning %s", "test") }, "warning test"},
		{"Errorf", func() { logger.Errorf("error %v", "test") }, "error test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			assert.Equal(t, tt.want, decodeEntry(t, &buf)["msg"])
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLogLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel("verbose"))
	assert.Equal(t, "WARN", WarnLevel.String())
}

func TestFromContext(t *testing.T) {
	t.Run("request and user before membership validation", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = WithRequestID(ctx, "req-123")
		ctx = contextkeys.WithUserID(ctx, "user-456")

		FromContext(ctx).Info("test message")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, "req-123", entry["request_id"])
		assert.Equal(t, "user-456", entry["user_id"])
		assert.NotContains(t, entry, "tenant_id")
	})

	t.Run("validated membership", func(t *testing.T) {
		var buf bytes.Buffer
		authCtx, err := auth.NewAuthContext("user-1", "tenant-1", auth.RoleAdmin)
		require.NoError(t, err)
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = contextkeys.WithAuth(ctx, authCtx)

		FromContext(ctx).Info("test message")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, "user-1", entry["user_id"])
		assert.Equal(t, "tenant-1", entry["tenant_id"])
		assert.Equal(t, "admin", entry["role"])
	})

	t.Run("fallback logger", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithRequestID(context.Background(), "req-9")

		FromContextOr(ctx, NewLogger(InfoLevel, &buf)).Info("test message")

		assert.Equal(t, "req-9", decodeEntry(t, &buf)["request_id"])
	})

	assert.Equal(t, "req-1", GetRequestID(WithRequestID(context.Background(), "req-1")))
	assert.NotNil(t, GetLogger(context.Background()))
}
