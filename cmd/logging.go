package main

import (
	"log/slog"
	"path/filepath"

	"github.com/vrouter/nlengine/types"
)

// logLevel can be changed while running, e.g. on a configuration reload.
var logLevel = new(slog.LevelVar)

func logReplacements(groups []string, a slog.Attr) slog.Attr {
	// Remove time.
	if a.Key == slog.TimeKey && len(groups) == 0 && !logTimeFlag {
		return slog.Attr{}
	}

	// Remove the directory from the source's filename.
	if a.Key == slog.SourceKey {
		source := a.Value.Any().(*slog.Source)
		source.File = filepath.Base(source.File)
	}

	// Give the custom trace level a proper name.
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, types.LevelName(level))
		}
	}

	return a
}
