// Package logging provides the structured logger shared by every component
// of the orchestration engine. It is a thin wrapper around zap: L hands out
// named *zap.SugaredLogger values that all share one process-wide level.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	base   *zap.Logger
	level  = zap.NewAtomicLevel()
	debug  bool
	inited bool
)

// Configure sets the process-wide logging level. Call once at startup;
// safe to call again in tests to toggle verbosity.
func Configure(debugMode bool) {
	mu.Lock()
	defer mu.Unlock()

	if debugMode {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
	debug = debugMode
	inited = true
}

// L returns a named sub-logger for a component ("orchestrator", "planning", ...).
// If Configure was never called, it first builds a production logger at
// info level. Loggers returned before a later Configure call follow the
// level that call sets.
func L(component string) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if !inited {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		cfg.EncoderConfig.TimeKey = "ts"
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		base = l
		inited = true
	}
	return base.Sugar().Named(component)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		_ = base.Sync()
	}
}

// DebugEnabled reports whether verbose logging is active.
func DebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debug
}
