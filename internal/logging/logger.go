package logging

import (
	"strings"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/levels"
)

var logLevels = map[string]levels.Level{
	"debug":   levels.LevelDebug,
	"info":    levels.LevelInfo,
	"warning": levels.LevelWarning,
	"warn":    levels.LevelWarning,
	"error":   levels.LevelError,
	"fatal":   levels.LevelFatal,
}

// ParseLevel maps a level name to a gologger level.
// ok is false for unknown names, which map to info.
func ParseLevel(logLevel string) (level levels.Level, ok bool) {
	level, ok = logLevels[strings.ToLower(strings.TrimSpace(logLevel))]
	if !ok {
		return levels.LevelInfo, false
	}
	return level, true
}

// SetupLogging configures gologger based on the log level
func SetupLogging(logLevel string) {
	level, ok := ParseLevel(logLevel)
	gologger.DefaultLogger.SetMaxLevel(level)

	if !ok {
		gologger.Warning().Msgf("Unknown log level '%s', using info", logLevel)
		return
	}
	gologger.Debug().Msgf("Log level configured to: %s", logLevel)
}
