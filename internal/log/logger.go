package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. An explicit level wins; otherwise production
// logs at info and everything else at debug.
func New(environment, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("env", environment).
		Logger()

	zerolog.SetGlobalLevel(parseLevel(environment, level))

	return logger
}

// parseLevel accepts any zerolog level name. Empty or unknown names fall
// back to the environment default.
func parseLevel(environment, level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err == nil && parsed != zerolog.NoLevel {
		return parsed
	}

	if environment == "production" {
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}
