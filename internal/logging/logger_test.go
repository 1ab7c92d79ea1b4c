package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Defaults(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.NoError(t, logger.Sync())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = "shouty"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLogger_AppendsContextFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithComponent(context.Background(), "cron")
	ctx = WithRunID(ctx, "run-1")
	tl.Info(ctx, "running scheduled task", zap.String("task_id", "t1"))

	tl.AssertLogged(t, zapcore.InfoLevel, "running scheduled task")
	tl.AssertField(t, "running scheduled task", "component", "cron")
	tl.AssertField(t, "running scheduled task", "run.id", "run-1")
	tl.AssertField(t, "running scheduled task", "task_id", "t1")
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()

	child := tl.Logger.Named("mcp").With(zap.String("server", "remote"))
	child.Warn(context.Background(), "refresh failed")

	entries := tl.FilterMessage("refresh failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "mcp", entries[0].LoggerName)

	found := false
	for _, f := range entries[0].Context {
		if f.Key == "server" && f.String == "remote" {
			found = true
		}
	}
	assert.True(t, found, "child field should be carried")

	// The parent is unaffected.
	tl.Info(context.Background(), "parent message")
	parent := tl.FilterMessage("parent message").All()
	require.Len(t, parent, 1)
	assert.Empty(t, parent[0].LoggerName)
}

func TestLogger_Enabled(t *testing.T) {
	tl := NewTestLogger()
	assert.True(t, tl.Enabled(zapcore.DebugLevel))
	assert.True(t, tl.Enabled(zapcore.ErrorLevel))
}

func TestFromContext_Fallback(t *testing.T) {
	// Without a stored logger, FromContext returns a usable nop.
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	logger.Info(context.Background(), "goes nowhere")

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "stored logger used")
	tl.AssertLogged(t, zapcore.InfoLevel, "stored logger used")
}
