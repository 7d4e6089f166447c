/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package trace is the VM-wide logging façade every subsystem calls
// through instead of fmt.Println, mirroring the teacher's trace/log
// package pair (jacobin's trace.Trace/trace.Error backed by its own level
// table). Here it wraps a single package-level *logrus.Logger, matching
// this corpus's other CLI tools (github.com/sirupsen/logrus).
package trace

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
}

// Init sets the level of the package-level logger; like SetLevel, it
// keeps the existing logger rather than installing a new one.
func Init(level logrus.Level) {
	logger.SetLevel(level)
}

// SetLevel adjusts verbosity without rebuilding the logger.
func SetLevel(level logrus.Level) { logger.SetLevel(level) }

// Logger returns the shared logger, for subsystems (internal/interp) that
// want a *logrus.Logger directly rather than these free functions.
func Logger() *logrus.Logger { return logger }

func Trace(format string, args ...interface{}) { logger.Debugf(format, args...) }
func Info(format string, args ...interface{})  { logger.Infof(format, args...) }
func Warning(format string, args ...interface{}) { logger.Warnf(format, args...) }
func Error(format string, args ...interface{}) { logger.Errorf(format, args...) }
func Fatal(format string, args ...interface{}) { logger.Fatalf(format, args...) }
