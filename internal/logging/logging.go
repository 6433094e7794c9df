// Package logging constructs the process-wide zap logger, replacing the
// teacher's raw log.Printf calls with structured, leveled logging. Grounded
// on infinite-experiment-politburo's zap usage, the only example repo
// carrying a structured logging library.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger for the given environment. "production" yields
// JSON output at info level; anything else yields human-readable console
// output at debug level.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		return cfg.Build()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return cfg.Build()
}
