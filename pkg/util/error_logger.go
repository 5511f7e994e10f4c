package util

import (
	"github.com/sirupsen/logrus"
)

// ErrorLogger may be used to report errors. Implementations may decide
// to log, mutate, redirect and discard them. This interface is used in
// places where errors are generated asynchronously or where failures
// are tolerated, meaning they cannot be returned to the caller
// directly. Examples include best-effort removal of parts while
// deleting a file.
type ErrorLogger interface {
	Log(err error)
}

type logrusErrorLogger struct {
	entry *logrus.Entry
}

// NewLogrusErrorLogger creates an ErrorLogger that writes errors at the
// error level through a logrus entry, so that any fields attached to
// the entry are included.
func NewLogrusErrorLogger(entry *logrus.Entry) ErrorLogger {
	return logrusErrorLogger{entry: entry}
}

func (l logrusErrorLogger) Log(err error) {
	l.entry.WithError(err).Error("Operation failed")
}

// DefaultErrorLogger writes errors using the standard logrus logger.
var DefaultErrorLogger ErrorLogger = NewLogrusErrorLogger(logrus.NewEntry(logrus.StandardLogger()))

type discardingErrorLogger struct{}

func (discardingErrorLogger) Log(err error) {}

// DiscardingErrorLogger drops all errors. It may be used in unit tests.
var DiscardingErrorLogger ErrorLogger = discardingErrorLogger{}
