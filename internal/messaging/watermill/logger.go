package watermill

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// zapAdapter routes watermill logs into zap.
type zapAdapter struct {
	l *zap.Logger
}

// NewZapAdapter wraps l as a watermill.LoggerAdapter.
func NewZapAdapter(l *zap.Logger) watermill.LoggerAdapter {
	return &zapAdapter{l: l.Named("watermill")}
}

func fieldsOf(f watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (a *zapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.l.Error(msg, append(fieldsOf(fields), zap.Error(err))...)
}

func (a *zapAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Info(msg, fieldsOf(fields)...)
}

func (a *zapAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, fieldsOf(fields)...)
}

func (a *zapAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, fieldsOf(fields)...)
}

func (a *zapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zapAdapter{l: a.l.With(fieldsOf(fields)...)}
}
