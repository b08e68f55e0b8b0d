// Package wslog defines the structured event sink the engine emits
// lifecycle and protocol events to, and a default [zerolog]-backed
// implementation.
//
// The engine never couples to a logging backend: every call site writes
// through the [Sink] interface, which an application can swap out (or
// no-op) entirely.
//
// [zerolog]: https://github.com/rs/zerolog
package wslog

import (
	"os"

	"github.com/rs/zerolog"
)

// Field is one structured key/value attribute attached to a logged event.
type Field struct {
	Key   string
	Value any
}

// F is a short constructor for [Field].
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Sink is the structured event sink the connection state machine and
// endpoint emit to. It never returns an error: a logging failure must
// never affect connection behavior.
type Sink interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// zerologSink bridges [zerolog.Logger] into the [Sink] interface.
type zerologSink struct {
	logger zerolog.Logger
}

// New returns a [Sink] backed by a zerolog JSON logger writing to stderr.
func New() Sink {
	return zerologSink{logger: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

// NewFrom wraps an already-configured [zerolog.Logger], e.g. one an
// application built with its own console/JSON writer and level.
func NewFrom(l zerolog.Logger) Sink {
	return zerologSink{logger: l}
}

func (s zerologSink) Debug(msg string, fields ...Field) { logWithFields(s.logger.Debug(), msg, fields) }
func (s zerologSink) Info(msg string, fields ...Field)  { logWithFields(s.logger.Info(), msg, fields) }
func (s zerologSink) Warn(msg string, fields ...Field)  { logWithFields(s.logger.Warn(), msg, fields) }
func (s zerologSink) Error(msg string, fields ...Field) {
	logWithFields(s.logger.Error().Stack(), msg, fields)
}

func logWithFields(e *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		e = e.Any(f.Key, f.Value)
	}
	e.Msg(msg)
}

// noopSink discards every event; used as the Config default so an
// application that never sets Config.Log pays nothing for logging.
type noopSink struct{}

// NoOp returns a [Sink] that discards every event.
func NoOp() Sink { return noopSink{} }

func (noopSink) Debug(string, ...Field) {}
func (noopSink) Info(string, ...Field)  {}
func (noopSink) Warn(string, ...Field)  {}
func (noopSink) Error(string, ...Field) {}
