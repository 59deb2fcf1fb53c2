package logging

import (
	"os"
	"sync/atomic"
)

var global atomic.Pointer[Logger]

func init() {
	global.Store(DefaultLogger())
}

// SetGlobal replaces the process-wide logger and returns the previous one.
// A nil logger is ignored.
func SetGlobal(l *Logger) *Logger {
	if l == nil {
		return global.Load()
	}
	return global.Swap(l)
}

// Global returns the process-wide logger. FromCtx falls back to it when a
// context carries no logger.
func Global() *Logger {
	return global.Load()
}

// Configure builds a stderr logger from the observability settings and
// installs it as the process-wide logger. Debug level also records callers.
func Configure(level, format string) *Logger {
	lvl := ParseLevel(level)
	l := New(Config{
		Level:     lvl,
		Format:    ParseFormat(format),
		Output:    os.Stderr,
		AddCaller: lvl == LevelDebug,
	})
	SetGlobal(l)
	return l
}
