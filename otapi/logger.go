package otapi

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Finalizers log from their own goroutine, so the logger is swapped atomically.
var logger atomic.Pointer[zap.Logger]

// Logger returns the otapi package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger configures the otapi package's logger. A nil logger restores the default.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
