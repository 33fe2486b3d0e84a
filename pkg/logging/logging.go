// Package logging builds the process-wide zerolog root logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the root logger for a process. LOG_LEVEL overrides the default
// info level.
func New(service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(writer).Level(level).With().Timestamp().Str("service", service).Logger()
}
