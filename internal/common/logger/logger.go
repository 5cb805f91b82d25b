// Package logger wraps zap with the component-scoped child-logger pattern
// used throughout the engine.
package logger

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Logger wraps a zap.Logger and supports component-scoped children via
// WithFields without callers needing to touch zap directly.
type Logger struct {
	zl *zap.Logger
}

// NewLogger builds a Logger from LoggingConfig.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{zl: zl}, nil
}

// WithFields returns a child logger carrying the given structured fields on
// every subsequent call, e.g. log.WithFields(zap.String("component", "x")).
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{zl: l.zl.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zl.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zl.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zl.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zl.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.zl.Fatal(msg, fields...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.zl.Sync() }

// Raw exposes the underlying zap.Logger for callers that need it directly
// (e.g. libraries that accept a *zap.Logger).
func (l *Logger) Raw() *zap.Logger { return l.zl }

var (
	defaultLogger atomic.Pointer[Logger]
	once          sync.Once
)

// SetDefault installs the process-wide default logger.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Default returns the process-wide default logger, building a bare-bones
// one on first use if SetDefault was never called.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	once.Do(func() {
		if defaultLogger.Load() == nil {
			l, err := NewLogger(LoggingConfig{Level: "info", Format: "json"})
			if err != nil {
				l = &Logger{zl: zap.NewNop()}
			}
			defaultLogger.Store(l)
		}
	})
	return defaultLogger.Load()
}
