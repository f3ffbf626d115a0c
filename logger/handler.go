// SPDX-License-Identifier: GPL-3.0-or-later

package logger

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/lmittmann/tint"
)

const (
	appKey       = "app"
	componentKey = "component"

	// Callers frames between Handle and the code that called a Logger method:
	// slog.(*Logger).log, slog.(*Logger).Log, (*Logger).log, (*Logger).Info.
	callerDepth = 4
)

type output struct {
	w       io.Writer
	term    bool
	journal bool
}

// newHandler renders to a terminal with tint, elsewhere as logfmt tagged with the app name.
func newHandler(out output) slog.Handler {
	if out.term {
		return &handler{next: newTerminalHandler(out.w), prefix: true, depth: callerDepth}
	}
	next := newTextHandler(out.w, out.journal).WithAttrs([]slog.Attr{slog.String(appKey, appName)})
	return &handler{next: next}
}

// newTextHandler omits timestamps under journald, which stamps every line itself.
func newTextHandler(w io.Writer, journal bool) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: Level.lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if journal {
					return slog.Attr{}
				}
			case slog.LevelKey:
				return slog.String(a.Key, strings.ToLower(a.Value.String()))
			}
			return a
		},
	})
}

// newTerminalHandler shows source locations only in debug mode.
func newTerminalHandler(w io.Writer) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		NoColor:   runtime.GOOS == "windows",
		AddSource: true,
		Level:     Level.lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.SourceKey:
				if !Level.Enabled(slog.LevelDebug) {
					return slog.Attr{}
				}
			}
			return a
		},
	})
}

// handler keeps the component out of the inner handler's attributes. A terminal shows it
// as a message prefix, logfmt output carries it as the component attribute.
type handler struct {
	next      slog.Handler
	component string
	prefix    bool
	depth     int
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hh := *h

	rest := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Key == componentKey {
			hh.component = a.Value.String()
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) > 0 {
		hh.next = h.next.WithAttrs(rest)
	}
	return &hh
}

func (h *handler) WithGroup(name string) slog.Handler {
	hh := *h
	hh.next = h.next.WithGroup(name)
	return &hh
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	if h.depth > 0 {
		var pcs [1]uintptr
		// skip Callers and Handle
		runtime.Callers(h.depth+2, pcs[:])
		r.PC = pcs[0]
	}

	if h.component != "" {
		if h.prefix {
			r.Message = h.component + ": " + r.Message
		} else {
			r = r.Clone()
			r.AddAttrs(slog.String(componentKey, h.component))
		}
	}

	return h.next.Handle(ctx, r)
}
