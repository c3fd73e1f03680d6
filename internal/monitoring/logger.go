// Package monitoring holds the process-wide diagnostic log hooks used by the
// ingestion pipeline, the fleet provisioner and the lifecycle guardian.
package monitoring

import (
	"log"
	"sync"
)

var (
	mu   sync.RWMutex
	logf = log.Printf
)

// Logf writes an informational diagnostic line. It defaults to log.Printf
// and may be redirected with SetLogger.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := logf
	mu.RUnlock()
	f(format, v...)
}

// Warnf writes a diagnostic line prefixed with "Warning: ". Per-item spawn
// failures and teardown failures surface only through this path.
func Warnf(format string, v ...interface{}) {
	Logf("Warning: "+format, v...)
}

// SetLogger replaces the package logger and returns a function restoring the
// previous one. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) (restore func()) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	mu.Lock()
	prev := logf
	logf = f
	mu.Unlock()
	return func() {
		mu.Lock()
		logf = prev
		mu.Unlock()
	}
}
