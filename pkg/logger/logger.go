package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns JSON logger writing to w. level overrides LOG_LEVEL when set;
// otherwise LOG_LEVEL is used (default info).
func New(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h)
}

// ParseLevel falls back to LOG_LEVEL and then to info.
func ParseLevel(level string) slog.Level {
	for _, v := range []string{level, os.Getenv("LOG_LEVEL")} {
		if v == "" {
			continue
		}
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(v)); err == nil {
			return parsed
		}
	}
	return slog.LevelInfo
}
