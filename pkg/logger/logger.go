// Package logger adapts *slog.Logger to the logging interfaces of third-party
// libraries so their output shares the application handler.
package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Badger satisfies badger.Logger.
type Badger struct {
	l *slog.Logger
}

// NewBadger tags records with component=badger.
func NewBadger(l *slog.Logger) *Badger {
	return &Badger{l: l.With("component", "badger")}
}

func (b *Badger) Errorf(format string, args ...any) {
	b.l.Error(trim(format, args))
}

func (b *Badger) Warningf(format string, args ...any) {
	b.l.Warn(trim(format, args))
}

func (b *Badger) Infof(format string, args ...any) {
	b.l.Debug(trim(format, args))
}

func (b *Badger) Debugf(format string, args ...any) {
	b.l.Debug(trim(format, args))
}

func trim(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

// Cron satisfies cron.Logger.
type Cron struct {
	l *slog.Logger
}

// NewCron tags records with component=cron.
func NewCron(l *slog.Logger) *Cron {
	return &Cron{l: l.With("component", "cron")}
}

// Info is noisy in robfig/cron (every wake-up), so it maps to debug.
func (c *Cron) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c *Cron) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
