// Package logging builds the zap loggers used across the templater.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger flavour.
type Config struct {
	// Level is one of debug, info, warn or error
	Level string
	// Development switches to the console encoder
	Development bool
}

// DefaultConfig logs info and above as JSON.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// New builds a logger. When the logger cannot be built a no-op logger is
// returned so callers never need to nil-check.
func New(config Config) *zap.Logger {
	var zc zap.Config
	if config.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(config.Level))

	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
