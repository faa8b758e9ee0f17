package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{"JSON output mode", true},
		{"Console output mode", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Initialize(tt.jsonOutput, VerbosityInfo)
			require.NoError(t, err)
			require.NotNil(t, Logger)
			assert.True(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel))
			assert.False(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
		})
	}

	Logger = zap.NewNop().Sugar()
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
}

func TestShouldOutput(t *testing.T) {
	assert.True(t, ShouldOutput(VerbosityUser, OutputResults))
	assert.False(t, ShouldOutput(VerbosityUser, OutputBatches))
	assert.True(t, ShouldOutput(VerbosityInfo, OutputBatches))
	assert.False(t, ShouldOutput(VerbosityDebug, OutputMutations))
	assert.True(t, ShouldOutput(VerbosityTrace, OutputMutations))
}

func TestFieldsFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithSessionID(context.Background(), "s-1")
	ctx = WithUserID(ctx, "u1")
	ctx = WithComponent(ctx, "server")
	ChildLogger(base, FieldsFromContext(ctx)...).Infow("stream opened")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "s-1", fields[FieldSessionID])
	assert.Equal(t, "u1", fields[FieldUserID])
	assert.Equal(t, "server", fields[FieldComponent])
}

func TestFieldsFromEmptyContext(t *testing.T) {
	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "User", LevelName(VerbosityUser))
	assert.Equal(t, "Debug (-vv)", LevelName(VerbosityDebug))
	assert.Equal(t, "Trace (-vvv+)", LevelName(5))
	assert.Equal(t, "Unknown", LevelName(-1))
}

func TestComponentLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Logger = zap.New(core).Sugar()
	defer func() { Logger = zap.NewNop().Sugar() }()

	ComponentLogger("batch").Debugw("flushed", FieldBatchSize, 3)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "batch", logs.All()[0].LoggerName)
	assert.EqualValues(t, 3, logs.All()[0].ContextMap()[FieldBatchSize])
}
