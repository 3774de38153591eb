package types

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]struct {
		want    slog.Level
		wantErr bool
	}{
		"trace":   {want: LevelTrace},
		"DEBUG":   {want: slog.LevelDebug},
		"info":    {want: slog.LevelInfo},
		"Warn":    {want: slog.LevelWarn},
		"error":   {want: slog.LevelError},
		"verbose": {wantErr: true},
		"":        {wantErr: true},
	}

	for name, tc := range tests {
		got, err := ParseLevel(name)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: got err %v; want error %v", name, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("%q: got %v; want %v", name, got, tc.want)
		}
	}

	if LevelTrace >= slog.LevelDebug {
		t.Errorf("trace (%d) isn't below debug", LevelTrace)
	}
	if got := LevelName(LevelTrace); got != "TRACE" {
		t.Errorf("got %q for the trace level; want TRACE", got)
	}
	if got := LevelName(slog.LevelWarn); got != "WARN" {
		t.Errorf("got %q for the warn level; want WARN", got)
	}
}
