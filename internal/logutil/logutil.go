// Package logutil owns the process-wide zap logger used by the compiler.
//
// Packages log through logutil.L() rather than constructing their own
// loggers, so tests and the CLI can swap the backend in one place.
package logutil

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = newDefault()
)

func newDefault() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		// Production config with no output overrides cannot fail to build;
		// fall back to a no-op logger rather than panic in init.
		return zap.NewNop()
	}
	return l
}

// L returns the current global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Replace swaps the global logger and returns the previous one.
// Tests use this to silence or capture compiler output.
func Replace(l *zap.Logger) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	prev := logger
	logger = l
	return prev
}
