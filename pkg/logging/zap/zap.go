// Package zap adapts a *zap.Logger to logging.Logger.
package zap

import (
	"github.com/vnykmshr/cacheboot/pkg/logging"
	"go.uber.org/zap"
)

// Logger wraps a zap logger
type Logger struct{ L *zap.Logger }

var _ logging.Logger = Logger{}

// New wraps l; a nil l yields a no-op zap logger
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f ...logging.Field) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f ...logging.Field)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f ...logging.Field)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f ...logging.Field) { z.L.Error(msg, fields(f)...) }

func (z Logger) With(f ...logging.Field) logging.Logger {
	return Logger{L: z.L.With(fields(f)...)}
}

func fields(f []logging.Field) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for _, field := range f {
		out = append(out, zap.Any(field.Key, field.Value))
	}
	return out
}
