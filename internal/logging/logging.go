// Package logging constructs the shared zap logger. Log context is carried
// as zap fields: callers extend a logger with With(...) and pass the derived
// value down, so context accumulates copy-on-write instead of being mutated
// in place.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the given level ("debug", "info", "warn",
// "error") and format ("json" or "console").
func New(levelStr, format string) *zap.Logger {
	level := zapcore.InfoLevel
	switch levelStr {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// WithCandidate returns a logger carrying the per-candidate correlation
// fields used throughout the reminder pipeline.
func WithCandidate(l *zap.Logger, documentNumber, application, xcv, tcv string) *zap.Logger {
	return l.With(
		zap.String("document_number", documentNumber),
		zap.String("application", application),
		zap.String("xcv", xcv),
		zap.String("tcv", tcv),
	)
}
