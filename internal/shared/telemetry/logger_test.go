package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInfoWritesFieldsToLogger(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Info("report.status", map[string]any{
		"report_id":         "r-1",
		"status_transition": "uploaded->processing",
	})

	entries := observed.FilterMessage("report.status").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "r-1", ctx["report_id"])
	assert.Equal(t, "uploaded->processing", ctx["status_transition"])
}

func TestErrorFieldsRenderErrors(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Error("report.failed", map[string]any{"error": errors.New("boom")})

	entries := observed.FilterMessage("report.failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}

func TestInitHonoursLevel(t *testing.T) {
	l, err := Init("dev", "warn")
	require.NoError(t, err)
	t.Cleanup(func() { SetLogger(nil) })

	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestFatalLoggerFallsBackBeforeInit(t *testing.T) {
	SetLogger(nil)
	assert.True(t, fatalLogger().Core().Enabled(zapcore.FatalLevel))

	core, _ := observer.New(zapcore.InfoLevel)
	installed := zap.New(core)
	SetLogger(installed)
	t.Cleanup(func() { SetLogger(nil) })
	assert.Same(t, installed, fatalLogger())
}
