package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, WarnLevel)

	logger.Info("dropped")
	logger.Warn("kept", Fields{"samples": 3})

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "[WARN] kept samples=3")
}

func TestDefaultLoggerFieldsAreSortedAndMerged(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, DebugLevel).WithFields(Fields{"component": "audio"})

	logger.Error(errors.New("boom"), "decode failed", Fields{"attempt": 2})

	assert.Contains(t, buf.String(), "[ERROR] decode failed: boom attempt=2 component=audio")
}

func TestContextFieldsFlowIntoLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, DebugLevel)

	ctx := ContextWithFields(context.Background(), Fields{"request_id": "r1"})
	ctx = ContextWithFields(ctx, Fields{"user_id": "u1"})

	logger.WithContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), "request_id=r1")
	assert.Contains(t, buf.String(), "user_id=u1")
}

func TestFatalInvokesExit(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, InfoLevel)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal(errors.New("no model"), "startup failed")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "[FATAL] startup failed: no model")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestSetGlobalLoggerNilInstallsNoOp(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	SetGlobalLogger(nil)
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
}

func TestZapLoggerWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLoggerFrom(zap.New(core))

	logger.WithFields(Fields{"component": "pipeline"}).Error(errors.New("bad tensor"), "scoring failed", Fields{"label": "neutral"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "scoring failed", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "pipeline", ctx["component"])
	assert.Equal(t, "neutral", ctx["label"])
	assert.Equal(t, "bad tensor", ctx["error"])
}

func TestZapLoggerSetLevel(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLoggerFrom(zap.New(core))

	logger.SetLevel(ErrorLevel)
	logger.Info("ignored")
	logger.Warn("ignored too")

	assert.Equal(t, 0, logs.Len())
}
