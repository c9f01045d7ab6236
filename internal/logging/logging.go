// Package logging wraps rs/zerolog behind the small structured sink the
// spec's external interfaces expect (§6: log.warn/error/trace(fields,
// message)), the same logger inipew-pewbot and weisyn-go-weisyn reach for
// instead of the stdlib log package the teacher repo uses.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Fields is a structured field set attached to one log line.
type Fields map[string]any

// Logger is the structured sink consumed by the channel and broadcast
// packages.
type Logger interface {
	Trace(fields Fields, msg string)
	Warn(fields Fields, msg string)
	Error(fields Fields, msg string)
}

type zeroLogger struct {
	l zerolog.Logger
}

// New builds a Logger writing human-readable console output to w, the way a
// developer running broadcast-node locally would want it. Pass os.Stdout in
// production entrypoints.
func New(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return &zeroLogger{l: zerolog.New(console).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything, for tests that don't want
// console noise.
func Nop() Logger {
	return &zeroLogger{l: zerolog.Nop()}
}

func (z *zeroLogger) Trace(fields Fields, msg string) { z.emit(z.l.Trace(), fields, msg) }
func (z *zeroLogger) Warn(fields Fields, msg string)  { z.emit(z.l.Warn(), fields, msg) }
func (z *zeroLogger) Error(fields Fields, msg string) { z.emit(z.l.Error(), fields, msg) }

func (z *zeroLogger) emit(ev *zerolog.Event, fields Fields, msg string) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
