package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/convrag/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    1,
		Thereafter: 0,
	})
	logger := zap.New(sampled)

	for i := 0; i < 5; i++ {
		logger.Info("repeated")
		logger.Error("failure")
	}

	assert.Equal(t, 1, observed.FilterMessage("repeated").Len())
	assert.Equal(t, 5, observed.FilterMessage("failure").Len())
}

func TestSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Same(t, core, newSampledCore(core, SamplingConfig{}))
}

func TestLevelFilterCore(t *testing.T) {
	core, _ := observer.New(TraceLevel)
	f := &levelFilterCore{Core: core, max: zapcore.WarnLevel, hasMax: true}

	assert.True(t, f.Enabled(TraceLevel))
	assert.True(t, f.Enabled(zapcore.WarnLevel))
	assert.False(t, f.Enabled(zapcore.ErrorLevel))

	child := f.With([]zapcore.Field{zap.String("k", "v")})
	assert.False(t, child.Enabled(zapcore.ErrorLevel))
}
