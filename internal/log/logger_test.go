package log

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		environment string
		level       string
		expected    zerolog.Level
	}{
		{"production", "", zerolog.InfoLevel},
		{"development", "", zerolog.DebugLevel},
		{"production", "debug", zerolog.DebugLevel},
		{"development", " WARN ", zerolog.WarnLevel},
		{"production", "trace", zerolog.TraceLevel},
		{"production", "disabled", zerolog.Disabled},
		{"development", "loud", zerolog.DebugLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.environment, tt.level); got != tt.expected {
			t.Errorf("parseLevel(%q, %q) = %v, expected %v", tt.environment, tt.level, got, tt.expected)
		}
	}
}

func TestNew_SetsGlobalLevel(t *testing.T) {
	previous := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(previous) })

	_ = New("production", "error")
	if got := zerolog.GlobalLevel(); got != zerolog.ErrorLevel {
		t.Errorf("Expected global level error, got %v", got)
	}
}
