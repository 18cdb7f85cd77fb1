package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// the process logger, installed by New and handed to components that are
// constructed without one
var (
	globalMu sync.RWMutex
	global   *zap.Logger
)

// SetGlobal replaces the process logger
func SetGlobal(l *zap.Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// Global returns the process logger. Until New or SetGlobal is called it
// writes info and above to stderr.
func Global() *zap.Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = buildDefault()
	}
	return global
}

func buildDefault() *zap.Logger {
	cfg := DefaultConfig()
	l, err := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Encoding:         cfg.Encoding,
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: cfg.ErrorOutputPaths,
	}.Build(zap.AddStacktrace(zapcore.DPanicLevel))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// OrGlobal returns l, or the process logger when l is nil
func OrGlobal(l Logger) Logger {
	if l == nil {
		return Global()
	}
	return l
}

// Sync flushes the process logger
func Sync() error {
	return Global().Sync()
}
