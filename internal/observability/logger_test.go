package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/meetrec/internal/config"
)

func testLogger(t *testing.T, cfg config.LoggingConfig) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return NewLoggerWithWriter(cfg, &buf), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestNewLoggerJSONFormat(t *testing.T) {
	logger, buf := testLogger(t, config.LoggingConfig{Level: "info", Format: "json"})
	logger.Info("test message", slog.String("key", "value"))

	m := decodeLine(t, buf)
	assert.Equal(t, "test message", m["msg"])
	assert.Equal(t, "value", m["key"])
}

func TestNewLoggerTextFormat(t *testing.T) {
	logger, buf := testLogger(t, config.LoggingConfig{Level: "info", Format: "text"})
	logger.Info("test message")

	assert.Contains(t, buf.String(), "msg=\"test message\"")
}

func TestNewLoggerLevelFiltering(t *testing.T) {
	logger, buf := testLogger(t, config.LoggingConfig{Level: "warn", Format: "json"})

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Empty(t, buf.String())

	logger.Warn("warn message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestSecretRedaction(t *testing.T) {
	logger, buf := testLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	secret := Secret("super-secret-value")
	logger.Info("configured", slog.Any("signing_secret", secret))

	out := buf.String()
	assert.NotContains(t, out, "super-secret-value")
}

func TestConfigSecretsRedacted(t *testing.T) {
	logger, buf := testLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	cfg := config.Config{}
	cfg.Database.DSN = "host=db user=app password=hunter2"
	cfg.Blobstore.SigningSecret = "hmac-signing-key"

	logger.Info("database configured", slog.Any("dsn", cfg.Database.DSN))
	logger.Info("blobstore configured", slog.Any("signing_secret", cfg.Blobstore.SigningSecret))

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "hmac-signing-key")

	// Stringer is masked too, so %s formatting cannot leak either.
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", cfg.Database.DSN))
}

func TestWithHelpers(t *testing.T) {
	logger, buf := testLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	logger = WithApp(logger, "meetrec", "1.2.3")
	logger = WithComponent(logger, "recorder")
	logger = WithSession(logger, "sess-1")
	logger = WithMeeting(logger, "meet-1")
	logger.Info("hello")

	m := decodeLine(t, buf)
	assert.Equal(t, "meetrec", m["app"])
	assert.Equal(t, "1.2.3", m["version"])
	assert.Equal(t, "recorder", m["component"])
	assert.Equal(t, "sess-1", m["session_id"])
	assert.Equal(t, "meet-1", m["meeting_id"])
}

func TestWithError(t *testing.T) {
	logger, buf := testLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	assert.Same(t, logger, WithError(logger, nil))

	WithError(logger, assert.AnError).Info("failed")
	m := decodeLine(t, buf)
	assert.Equal(t, assert.AnError.Error(), m["error"])
}

func TestContextLogger(t *testing.T) {
	logger, _ := testLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, LoggerFromContext(ctx))

	// Falls back to the default logger when absent.
	assert.NotNil(t, LoggerFromContext(context.Background()))
}

func TestContextRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestTimedOperation(t *testing.T) {
	logger, buf := testLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	done := TimedOperation(context.Background(), logger, "test_op")
	done()

	out := buf.String()
	assert.Contains(t, out, "operation started")
	assert.Contains(t, out, "operation completed")
	assert.Contains(t, out, "test_op")
}
