package storage

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/pathwaygraph/pkg/logging"
)

// badgerLogger routes badger's internal log lines into the application
// logger under component "badger".
type badgerLogger struct {
	log *logging.Logger
}

// NewBadgerLogger adapts log to badger.Logger for BadgerOptions.Logger.
func NewBadgerLogger(log *logging.Logger) badger.Logger {
	return &badgerLogger{log: log.Component("badger")}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(trimNewline(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(trimNewline(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(trimNewline(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(trimNewline(fmt.Sprintf(format, args...)))
}

func trimNewline(s string) string {
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s
}
