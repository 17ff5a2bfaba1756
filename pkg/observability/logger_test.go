package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/contextkeys"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
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
		entry := decodeLine(t, &buf)
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "info message", entry["message"])
		assert.Contains(t, entry, "timestamp")
	})

	t.Run("formatted error", func(t *testing.T) {
		buf.Reset()
		logger.Errorf("failed %d times", 3)
		entry := decodeLine(t, &buf)
		assert.Equal(t, "error", entry["level"])
		assert.Equal(t, "failed 3 times", entry["message"])
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("table", "employees").
		WithFields(map[string]interface{}{"operation": "create", "count": 2}).
		WithError(errors.New("boom")).
		Warn("batch rejected")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "employees", entry["table"])
	assert.Equal(t, "create", entry["operation"])
	assert.Equal(t, float64(2), entry["count"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "warning", entry["level"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	assert.Same(t, logger, logger.WithError(nil))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel("nonsense"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = contextkeys.WithRequestID(ctx, "req-1")
	ctx = contextkeys.WithUserID(ctx, "user-1")

	FromContext(ctx).Info("hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "user-1", entry["user_id"])
}
