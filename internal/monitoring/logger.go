// Package monitoring holds the diagnostic logging hooks shared by the
// command-line tools and supporting packages. The ply and prune packages
// never log; they report failures through returned errors.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose toggles Debugf output.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Debugf logs through Logf only when verbose output is enabled.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf("debug: "+format, v...)
	}
}

// Warnf logs a non-fatal condition the operator should know about.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}
