// Package monitoring holds the process-wide diagnostic logger. Components
// tag their lines with a bracketed prefix such as "[fit]" or "[db]".
package monitoring

import (
	"log"
	"strings"
)

// Logf is the package-level logger. It defaults to log.Printf and may be
// replaced with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags each line with "[component] ". The
// package logger is looked up on every call, so SetLogger takes effect for
// loggers created earlier.
func Prefixed(component string) func(format string, v ...interface{}) {
	tag := "[" + strings.Trim(component, "[] ") + "] "
	return func(format string, v ...interface{}) {
		Logf(tag+format, v...)
	}
}
