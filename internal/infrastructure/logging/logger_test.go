package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"development", DevelopmentConfig(), false},
		{"no output paths", Config{Level: "warn"}, false},
		{"bad level", Config{Level: "chatty"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger.Logger)
		})
	}
}

func TestParseLevel(t *testing.T) {
	l, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, l)

	l, err = parseLevel("nope")
	assert.Error(t, err)
	assert.Equal(t, zapcore.InfoLevel, l)
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.ForUser(100).Info("discarded")
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestSampledProductionLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestDomainFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ForClient(ForIme(base, "com.example.kbd", 1001), 42, 20000042).
		Info("bound", Text("text", "héllo😀"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "com.example.kbd", fields["ime"])
	assert.Equal(t, int64(1001), fields["ime_pid"])
	assert.Equal(t, int64(42), fields["client_pid"])
	assert.Equal(t, int64(20000042), fields["client_uid"])
	assert.Equal(t, int64(6), fields["text_chars"])
	assert.NotContains(t, fields, "text")
}
