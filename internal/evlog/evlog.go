// Package evlog provides the package-level logger used across the decoders.
//
// Severity is controlled by the DISSECT_LOG_EVTX environment variable (spec
// §6), read once at process start. Record- and chunk-level decode failures
// (spec §7) are logged here rather than returned as fatal errors, since a
// single corrupt record or chunk must not abort the rest of the stream.
package evlog

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const envVar = "DISSECT_LOG_EVTX"

// L is the package logger. Default level is Error ("errors only"), matching
// the original Python's logging.setLevel(os.getenv(envVar, "CRITICAL")).
var L = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelFromEnv()}))

func levelFromEnv() slog.Level {
	return parseLevel(os.Getenv(envVar))
}

// parseLevel accepts slog's own names plus "CRITICAL" and "FATAL" as
// aliases for Error, since the level this env var originally selected was a
// Python logging level name. An empty or unrecognized value means
// errors-only, the documented default.
func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL", "FATAL", "":
		return slog.LevelError
	default:
		return slog.LevelError
	}
}

// Discard silences all logging. Useful for tests that intentionally feed
// corrupt input and don't want the noise.
func Discard() {
	L = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Debug(msg string, args ...any) { L.Debug(msg, args...) }
func Info(msg string, args ...any)  { L.Info(msg, args...) }
func Warn(msg string, args ...any)  { L.Warn(msg, args...) }
func Error(msg string, args ...any) { L.Error(msg, args...) }
