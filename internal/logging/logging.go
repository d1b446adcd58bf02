// Package logging builds the process zap logger.
package logging

import (
	"fmt"

	"github.com/levenlabs/go-llog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FromLLog maps the level configured through llog flags onto zap.
func FromLLog(l llog.Level) (zapcore.Level, error) {
	switch l {
	case llog.DebugLevel:
		return zapcore.DebugLevel, nil
	case llog.InfoLevel:
		return zapcore.InfoLevel, nil
	case llog.WarnLevel:
		return zapcore.WarnLevel, nil
	case llog.ErrorLevel:
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", l.String())
}

// New returns a console logger in development mode and a JSON logger
// otherwise, both filtering below level.
func New(level zapcore.Level, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("can't initialize zap logger: %w", err)
	}
	return logger, nil
}

// Configured builds the logger from the llog level set by lflag.Configure.
func Configured(development bool) (*zap.Logger, error) {
	level, err := FromLLog(llog.GetLevel())
	if err != nil {
		return nil, err
	}
	return New(level, development)
}
