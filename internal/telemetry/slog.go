package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configured level name to a slog.Level. Unknown names
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds a logger writing to w: JSON when format is "json", text
// otherwise. attrs are key/value pairs added to every record. Source
// locations are included at debug level.
func NewLogger(w io.Writer, format, level string, attrs ...any) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(attrs...)
}

// SetupLogger installs a stdout logger as the slog default and returns it.
//
//	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, "service", "ara-platform")
func SetupLogger(format, level string, attrs ...any) *slog.Logger {
	logger := NewLogger(os.Stdout, format, level, attrs...)
	slog.SetDefault(logger)
	logger.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
	return logger
}
