// Package logger owns the process-wide structured logger: JSON to
// stderr, bridged into otel trace events, with a level that config can
// retune after loading.
package logger

import (
	"log/slog"
	"os"
	"strconv"

	slogotel "github.com/remychantenay/slog-otel"
)

// Matches the viper env binding for logging.app.level, so the level is
// right even for the log lines emitted while config is still loading.
const levelEnvVar = "CPAGGREGATOR_LOGGING_APP_LEVEL"

var LogLevel = new(slog.LevelVar)

var jsonHandler = slog.NewJSONHandler(
	os.Stderr,
	&slog.HandlerOptions{AddSource: true, Level: LogLevel},
)
var sloghandler = slogotel.NewOtelHandler(slogotel.WithNoTraceEvents(true))
var Handler = sloghandler(jsonHandler)
var Logger = slog.New(Handler)

func InitSlog() {
	slog.SetDefault(Logger)
	LogLevel.Set(initialLevel())
}

func initialLevel() slog.Level {
	raw, ok := os.LookupEnv(levelEnvVar)
	if !ok {
		return slog.LevelInfo
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return slog.LevelInfo
	}
	return slog.Level(value)
}
