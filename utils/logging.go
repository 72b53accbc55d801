package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupJSONLogger configures the global logger for machine-readable output
func SetupJSONLogger(levelStr string, w io.Writer) {
	zerolog.MessageFieldName = "message"
	zerolog.LevelFieldName = "level"

	log.Logger = zerolog.New(w).
		With().
		Timestamp().
		Logger().
		Level(GetLogLevelOrInfo(levelStr))
}

// SetupDefaultLogger configures the global logger for console output
func SetupDefaultLogger(levelStr string) {
	zerolog.MessageFieldName = "message"
	zerolog.LevelFieldName = "level"

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(GetLogLevelOrInfo(levelStr)).
		With().
		Timestamp().
		Logger()
}

// GetLogLevelOrInfo parses a level name, defaulting to info
func GetLogLevelOrInfo(levelStr string) zerolog.Level {
	levelStr = strings.ToLower(levelStr)
	if levelStr == "warning" {
		levelStr = "warn"
	}

	var level zerolog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err == nil {
		return level
	}

	log.Warn().Msgf("Unknown log level '%s', defaulting to info", levelStr)
	return zerolog.InfoLevel
}
