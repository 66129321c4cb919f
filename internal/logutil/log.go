package logutil

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type key byte

var loggerKey = key(1)

// Setup configures the global logger and returns a logger tagged with the
// service name. Level falls back to info when the string is not recognized.
func Setup(service, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", service).Logger().Level(lvl)
	log.Logger = logger
	return logger
}

// WithLogger stores logger in ctx for retrieval via GetOrDefault.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetOrDefault returns the logger stored in ctx, or the global logger.
func GetOrDefault(ctx context.Context) zerolog.Logger {
	v := ctx.Value(loggerKey)
	if v == nil {
		return log.Logger
	}
	return v.(zerolog.Logger)
}
