// Package rlog is the single logging choke point for the fast path,
// mirroring the rclone convention of routing every component through
// package-level Debugf/Infof/Errorf helpers instead of calling a
// logger directly.
package rlog

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel adjusts the global verbosity, e.g. from a -v flag.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

// Subject is anything the log line is about: an fd table, a cache
// slot, an IPC worker. Matches the pattern rclone uses where the
// first Debugf argument names the receiver.
type Subject interface {
	String() string
}

type plainSubject string

func (p plainSubject) String() string { return string(p) }

// Plain wraps a bare string so it can be passed where a Subject is
// expected.
func Plain(s string) Subject { return plainSubject(s) }

// Debugf logs at debug level, prefixed with the subject.
func Debugf(o Subject, format string, args ...interface{}) {
	std.Debugf("%s: %s", o, fmt.Sprintf(format, args...))
}

// Infof logs at info level, prefixed with the subject.
func Infof(o Subject, format string, args ...interface{}) {
	std.Infof("%s: %s", o, fmt.Sprintf(format, args...))
}

// Errorf logs at error level, prefixed with the subject.
func Errorf(o Subject, format string, args ...interface{}) {
	std.Errorf("%s: %s", o, fmt.Sprintf(format, args...))
}

// Logf logs at the given level, prefixed with the subject.
func Logf(level logrus.Level, o Subject, format string, args ...interface{}) {
	std.Logf(level, "%s: %s", o, fmt.Sprintf(format, args...))
}
