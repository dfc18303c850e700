package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger shared by the pipeline packages.
// It defaults to log.Printf and may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose enables or disables Debugf output.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Debugf logs through Logf only when verbose output is enabled. It is used on
// the per-frame path where unconditional logging would flood the output.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}
