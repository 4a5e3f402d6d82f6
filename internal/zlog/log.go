// Package zlog is a small leveled, key-value logger in the shape the
// zenanet family of clients uses throughout core/eth/rawdb: Info, Warn,
// Error and Crit calls taking a message followed by alternating key/value
// pairs. It is backed by the standard library's slog handler rather than a
// bespoke formatter, the same way upstream's own log package is internally
// slog-based.
package zlog

import (
	"context"
	"log/slog"
	"os"
)

var root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// SetHandler replaces the process-wide handler, e.g. to switch to JSON
// output or raise the verbosity threshold.
func SetHandler(h slog.Handler) {
	root = slog.New(h)
}

func Debug(msg string, kv ...any) { root.Debug(msg, kv...) }
func Info(msg string, kv ...any)  { root.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { root.Warn(msg, kv...) }
func Error(msg string, kv ...any) { root.Error(msg, kv...) }

// Crit logs at a level above Error (slog.LevelError+4) and then terminates
// the process. Reserved for
// invariant violations that mean the in-memory tables are already
// inconsistent (mirrors rawdb's use of log.Crit on an encode/store failure
// that can never legitimately happen).
func Crit(msg string, kv ...any) {
	root.Log(context.Background(), slog.LevelError+4, msg, kv...)
	os.Exit(1)
}

// New returns a logger scoped with a persistent "component" field, the way
// the teacher's packages tag their log lines by subsystem.
func New(component string) *Logger {
	return &Logger{l: root.With("component", component)}
}

// Logger is a component-scoped handle returned by New.
type Logger struct{ l *slog.Logger }

func (c *Logger) Debug(msg string, kv ...any) { c.l.Debug(msg, kv...) }
func (c *Logger) Info(msg string, kv ...any)  { c.l.Info(msg, kv...) }
func (c *Logger) Warn(msg string, kv ...any)  { c.l.Warn(msg, kv...) }
func (c *Logger) Error(msg string, kv ...any) { c.l.Error(msg, kv...) }
func (c *Logger) Crit(msg string, kv ...any) {
	c.l.Error(msg, kv...)
	os.Exit(1)
}
