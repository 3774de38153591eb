package types

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below debug. The engine logs every request it queues and
// sends at this level.
const LevelTrace = slog.LevelDebug - 4

var levelNames = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a level name as found in flags and configuration files
// onto a slog level. Names are case insensitive.
func ParseLevel(name string) (slog.Level, error) {
	l, ok := levelNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return l, nil
}

// LevelName is the inverse of ParseLevel, falling back to slog's naming for
// levels without a name of their own.
func LevelName(l slog.Level) string {
	if l == LevelTrace {
		return "TRACE"
	}
	return l.String()
}
