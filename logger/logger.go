// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

var stderr = output{
	w:       os.Stderr,
	term:    isatty.IsTerminal(os.Stderr.Fd()),
	journal: underJournald(),
}

var nilLogger = New()

// New returns a Logger writing to stderr.
func New() *Logger {
	return newLogger(stderr)
}

func newLogger(out output) *Logger {
	return &Logger{sl: slog.New(newHandler(out))}
}

type Logger struct {
	muted atomic.Bool
	sl    *slog.Logger
}

func (l *Logger) Error(a ...any)                   { l.log(slog.LevelError, fmt.Sprint(a...)) }
func (l *Logger) Warning(a ...any)                 { l.log(slog.LevelWarn, fmt.Sprint(a...)) }
func (l *Logger) Info(a ...any)                    { l.log(slog.LevelInfo, fmt.Sprint(a...)) }
func (l *Logger) Debug(a ...any)                   { l.log(slog.LevelDebug, fmt.Sprint(a...)) }
func (l *Logger) Errorf(format string, a ...any)   { l.log(slog.LevelError, fmt.Sprintf(format, a...)) }
func (l *Logger) Warningf(format string, a ...any) { l.log(slog.LevelWarn, fmt.Sprintf(format, a...)) }
func (l *Logger) Infof(format string, a ...any)    { l.log(slog.LevelInfo, fmt.Sprintf(format, a...)) }
func (l *Logger) Debugf(format string, a ...any)   { l.log(slog.LevelDebug, fmt.Sprintf(format, a...)) }

// Mute suppresses all output of this logger until Unmute is called.
func (l *Logger) Mute()   { l.muted.Store(true) }
func (l *Logger) Unmute() { l.muted.Store(false) }

// With returns a Logger with the given attributes, a "component" attribute names the
// part of vmdkperf that logs.
func (l *Logger) With(args ...any) *Logger {
	if l.isNil() {
		return &Logger{sl: nilLogger.sl.With(args...)}
	}
	ll := &Logger{sl: l.sl.With(args...)}
	ll.muted.Store(l.muted.Load())
	return ll
}

func (l *Logger) log(level slog.Level, msg string) {
	if l.isNil() {
		nilLogger.sl.Log(context.Background(), level, msg)
		return
	}
	if l.muted.Load() {
		return
	}
	l.sl.Log(context.Background(), level, msg)
}

func (l *Logger) isNil() bool { return l == nil || l.sl == nil }
