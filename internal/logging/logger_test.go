package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, cfg, logger.config)
	assert.NotNil(t, logger.Underlying())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewLogger_OTELWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
}

func TestLogger_Levels(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func()
		level zapcore.Level
		msg   string
	}{
		{"trace", func() { tl.Trace(ctx, "trace message") }, TraceLevel, "trace message"},
		{"debug", func() { tl.Debug(ctx, "debug message") }, zapcore.DebugLevel, "debug message"},
		{"info", func() { tl.Info(ctx, "info message") }, zapcore.InfoLevel, "info message"},
		{"warn", func() { tl.Warn(ctx, "warn message") }, zapcore.WarnLevel, "warn message"},
		{"error", func() { tl.Error(ctx, "error message") }, zapcore.ErrorLevel, "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.log()
			tl.AssertLogged(t, tt.level, tt.msg)
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithConversationID(context.Background(), "conv-1")
	ctx = WithCorpusID(ctx, "handbook")
	ctx = WithRequestID(ctx, "req-9")

	tl.Info(ctx, "turn complete", zap.Int("sources", 3))

	tl.AssertField(t, "turn complete", "conversation.id", "conv-1")
	tl.AssertField(t, "turn complete", "corpus.id", "handbook")
	tl.AssertField(t, "turn complete", "request.id", "req-9")
	tl.AssertField(t, "turn complete", "sources", int64(3))
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()

	child := tl.With(zap.String("component", "router")).Named("engine")
	child.Info(context.Background(), "routed")

	entries := tl.FilterMessage("routed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "engine", entries[0].LoggerName)
	assert.Equal(t, "router", entries[0].ContextMap()["component"])
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithIDs_EmptyLeavesContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithConversationID(ctx, ""))
	assert.Empty(t, ConversationIDFromContext(ctx))
	assert.Empty(t, ContextFields(ctx))
}
