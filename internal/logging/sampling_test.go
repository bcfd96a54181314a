package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	cfg := SamplingConfig{Enabled: false}

	sampled := newSampledCore(core, cfg)

	assert.Equal(t, core, sampled)
}

func TestNewSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	cfg := SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Second),
		Initial:    5,
		Thereafter: 0,
	}

	logger := &Logger{
		zap:    zap.New(newSampledCore(core, cfg)),
		config: NewDefaultConfig(),
	}

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		logger.Error(ctx, "error message")
	}

	logs := observed.FilterMessage("error message").All()
	assert.Len(t, logs, 100, "errors must never be sampled")
}

func TestNewSampledCore_BelowErrorSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	cfg := SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Second),
		Initial:    5,
		Thereafter: 0,
	}

	logger := &Logger{
		zap:    zap.New(newSampledCore(core, cfg)),
		config: NewDefaultConfig(),
	}

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		logger.Info(ctx, "repeated message")
	}

	logs := observed.FilterMessage("repeated message").All()
	assert.GreaterOrEqual(t, len(logs), 5, "initial entries must pass")
	assert.Less(t, len(logs), 100, "sampling must drop the rest")
}

func TestNewSampledCore_WarnSampledToo(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	cfg := SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Second),
		Initial:    3,
		Thereafter: 0,
	}

	logger := &Logger{
		zap:    zap.New(newSampledCore(core, cfg)),
		config: NewDefaultConfig(),
	}

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		logger.Warn(ctx, "warn message")
	}

	logs := observed.FilterMessage("warn message").All()
	assert.Less(t, len(logs), 50, "warnings sit below the error band and get sampled")
}

func TestBandCore_Enabled(t *testing.T) {
	core, _ := observer.New(TraceLevel)
	band := &bandCore{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel}

	assert.False(t, band.Enabled(zapcore.InfoLevel))
	assert.False(t, band.Enabled(zapcore.WarnLevel))
	assert.True(t, band.Enabled(zapcore.ErrorLevel))
	assert.True(t, band.Enabled(zapcore.FatalLevel))
}

func TestBandCore_With(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	band := &bandCore{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel}

	logger := &Logger{
		zap:    zap.New(band),
		config: NewDefaultConfig(),
	}

	ctx := context.Background()
	child := logger.With(zap.String("component", "index"))

	child.Info(ctx, "info message")
	child.Warn(ctx, "warn message")
	child.Error(ctx, "error message")

	logs := observed.All()
	assert.Len(t, logs, 1, "only error passes the band")
	assert.Equal(t, "error message", logs[0].Message)
	assert.Equal(t, "index", logs[0].ContextMap()["component"])
}
