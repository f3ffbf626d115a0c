// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger

	assert.NotPanics(t, func() {
		l.Info("info")
		l.Errorf("error %d", 1)
		_ = l.With("key", "value")
	})
}

func TestLogger_With_KeepsMuted(t *testing.T) {
	l := New()
	l.Mute()

	assert.True(t, l.With("key", "value").muted.Load())
}

func TestLevel_SetByName(t *testing.T) {
	defer Level.Set(slog.LevelInfo)

	tests := map[string]struct {
		name string
		want slog.Level
	}{
		"error":   {name: "err", want: slog.LevelError},
		"warning": {name: "WARNING", want: slog.LevelWarn},
		"info":    {name: "info", want: slog.LevelInfo},
		"debug":   {name: "debug", want: slog.LevelDebug},
		"off":     {name: "off", want: levelOff},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			Level.SetByName(test.name)
			assert.Equal(t, test.want, Level.lvl.Level())
		})
	}
}

func TestLevel_SetByName_UnknownKeepsLevel(t *testing.T) {
	defer Level.Set(slog.LevelInfo)

	Level.Set(slog.LevelWarn)
	Level.SetByName("notice")

	assert.Equal(t, slog.LevelWarn, Level.lvl.Level())
}

func TestLogger_Output(t *testing.T) {
	tests := map[string]struct {
		out      func(*bytes.Buffer) output
		contains []string
		excludes []string
	}{
		"logfmt": {
			out:      func(buf *bytes.Buffer) output { return output{w: buf} },
			contains: []string{"time=", "level=warn", `msg="disk gone"`, "app=vmdkperf", "component=perf", "vm=web-1"},
		},
		"logfmt under journald": {
			out:      func(buf *bytes.Buffer) output { return output{w: buf, journal: true} },
			contains: []string{"level=warn", "component=perf"},
			excludes: []string{"time="},
		},
		"terminal": {
			out:      func(buf *bytes.Buffer) output { return output{w: buf, term: true} },
			contains: []string{"perf: disk gone", "web-1"},
			excludes: []string{"component=", "app="},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			l := newLogger(test.out(&buf)).With("component", "perf", "vm", "web-1")

			l.Warning("disk gone")

			line := buf.String()
			assert.Equal(t, 1, strings.Count(line, "\n"))
			for _, s := range test.contains {
				assert.Contains(t, line, s)
			}
			for _, s := range test.excludes {
				assert.NotContains(t, line, s)
			}
		})
	}
}

func TestLogger_Output_RespectsLevel(t *testing.T) {
	defer Level.Set(slog.LevelInfo)
	var buf bytes.Buffer
	l := newLogger(output{w: &buf})

	Level.SetByName("off")
	l.Error("dropped")
	assert.Empty(t, buf.String())

	Level.SetByName("debug")
	l.Debug("kept")
	assert.Contains(t, buf.String(), "level=debug")
}
