// Package logrus adapts a *logrus.Entry to logging.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/vnykmshr/cacheboot/pkg/logging"
)

// Logger wraps a logrus entry
type Logger struct{ E *logrus.Entry }

var _ logging.Logger = Logger{}

// New wraps the given logrus logger
func New(l *logrus.Logger) Logger {
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f ...logging.Field) { l.E.WithFields(fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f ...logging.Field)  { l.E.WithFields(fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f ...logging.Field)  { l.E.WithFields(fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f ...logging.Field) { l.E.WithFields(fields(f)).Error(msg) }

func (l Logger) With(f ...logging.Field) logging.Logger {
	return Logger{E: l.E.WithFields(fields(f))}
}

func fields(f []logging.Field) logrus.Fields {
	out := make(logrus.Fields, len(f))
	for _, field := range f {
		out[field.Key] = field.Value
	}
	return out
}
