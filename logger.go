package btsense

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger denotes a generic logger interface
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// NullLogger discards all log output
type NullLogger struct{}

// Debugf does nothing
func (n *NullLogger) Debugf(format string, args ...interface{}) {}

// Infof does nothing
func (n *NullLogger) Infof(format string, args ...interface{}) {}

// Warnf does nothing
func (n *NullLogger) Warnf(format string, args ...interface{}) {}

// Errorf does nothing
func (n *NullLogger) Errorf(format string, args ...interface{}) {}

// Fatalf does nothing
func (n *NullLogger) Fatalf(format string, args ...interface{}) {}

// NewDefaultLogger returns a console logger backed by zap, optionally with debug output enabled
func NewDefaultLogger(debug bool) Logger {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}

	return logger.Sugar()
}
