// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"log/slog"
	"strings"
)

// levelOff is above every level a Logger emits.
const levelOff = slog.LevelError + 4

// Level is shared by every Logger of the process.
var Level = &level{lvl: &slog.LevelVar{}}

type level struct {
	lvl *slog.LevelVar
}

func (l *level) Enabled(level slog.Level) bool {
	return level >= l.lvl.Level()
}

func (l *level) Set(level slog.Level) {
	l.lvl.Set(level)
}

// SetByName accepts error, warning, info, debug and off. Unknown names leave the level unchanged.
func (l *level) SetByName(name string) {
	switch strings.ToLower(name) {
	case "error", "err":
		l.lvl.Set(slog.LevelError)
	case "warning", "warn":
		l.lvl.Set(slog.LevelWarn)
	case "info":
		l.lvl.Set(slog.LevelInfo)
	case "debug":
		l.lvl.Set(slog.LevelDebug)
	case "off":
		l.lvl.Set(levelOff)
	}
}
