package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		level slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"Error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, tt.level, level)
		})
	}
}

func TestParseLevel_RejectsUnknown(t *testing.T) {
	for _, input := range []string{"", "verbose", "trace", "warnings"} {
		t.Run(input, func(t *testing.T) {
			level, err := ParseLevel(input)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "unknown log level")
			// The fallback level still lets a caller log the rejection.
			assert.Equal(t, slog.LevelWarn, level)
		})
	}
}
