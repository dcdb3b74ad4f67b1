package infra

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process-wide slog logger from config.
// Text handler on stdout; level defaults to INFO.
func NewLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// Recover logs a panic at the top of main instead of letting the
// runtime print a bare stack trace. Re-raising is deliberate: the
// process must still die with a non-zero exit.
func Recover() {
	if r := recover(); r != nil {
		slog.Error("FATAL_PANIC", slog.Any("panic", r))
		panic(r)
	}
}
