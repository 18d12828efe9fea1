package embedjs

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// Logger returns the package logger. It is a no-op logger unless
// SetLogger was called.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// SetLogger replaces the package logger used by environments created
// without WithLogger.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// envLogger picks the logger for a new Env and raises it to level when
// one is configured.
func envLogger(base *zap.Logger, level string) *zap.Logger {
	if base == nil {
		base = Logger()
	}
	if level == "" {
		return base
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return base
	}
	return base.WithOptions(zap.IncreaseLevel(lvl))
}
