// Package monitoring owns the process-wide structured logger.
//
// The logger is a zap production logger whose level is held in an
// AtomicLevel so the debug toggle can be flipped at runtime (for example
// from a config file reload) without rebuilding it.
package monitoring

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger atomic.Pointer[zap.Logger]
)

func init() {
	logger.Store(build())
}

func build() *zap.Logger {
	config := zap.NewProductionConfig()
	config.Level = level
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// L returns the current logger.
func L() *zap.Logger {
	return logger.Load()
}

// Named returns a child of the current logger scoped to a component.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// SetLogger replaces the process logger. Passing nil installs a no-op logger.
// Tests use this with zaptest.NewLogger to capture output.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// SetDebug switches the default logger between Debug and Info level.
// Loggers installed through SetLogger keep their own level.
func SetDebug(on bool) {
	if on {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.InfoLevel)
}

// DebugEnabled reports whether the default logger is at Debug level.
func DebugEnabled() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// Logf is a printf-style shortcut for Info-level messages.
func Logf(format string, v ...interface{}) {
	L().Sugar().Infof(format, v...)
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = L().Sync()
}
