package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"chatty", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, err := New(tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			assert.False(t, l.Core().Enabled(tt.enabled-1))
		})
	}
}
