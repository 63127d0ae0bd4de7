// Package logging constructs the process-wide zerolog.Logger from config,
// the one process-wide singleton the gateway allows (see DESIGN.md).
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a logger honoring level and format ("json" or "console"),
// matching the teacher's cmd/api/main.go construction.
func New(level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var writer = os.Stderr
	var logger zerolog.Logger
	if strings.EqualFold(format, "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: writer}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(writer).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}
