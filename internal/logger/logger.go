// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the global logger instance. It discards output until
// Initialize runs.
var Logger = zerolog.Nop()

// Initialize installs the global logger at the given level. format is
// "console" for human-readable output or "json" (the default) for
// structured lines.
func Initialize(level, format string) {
	InitializeWriter(level, format, os.Stdout)
}

// InitializeWriter is Initialize with an explicit destination.
func InitializeWriter(level, format string, out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = out
	if format == "console" {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	Logger = zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(level))

	// Replace the package-level zerolog logger.
	log.Logger = Logger
}

// ParseLevel maps debug|info|warn|error to a zerolog level. Anything else
// is info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetForComponent returns a logger with a component field for filtering.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
