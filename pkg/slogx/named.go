package slogx

import (
	"log/slog"
	"time"
)

// ComponentKey is the attribute Named attaches to child loggers.
const ComponentKey = "component"

// Named returns a child logger tagged with a component name. Nested calls
// join names with a dot, so Named(Named(l, "checkout"), "submit") logs
// component=checkout.submit.
//
// The parent path is tracked through a private handler wrapper since slog
// does not expose previously attached attributes.
func Named(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}

	path := name
	if nh, ok := l.Handler().(*namedHandler); ok {
		path = nh.path + "." + name
		return slog.New(&namedHandler{
			Handler: nh.base.WithAttrs([]slog.Attr{slog.String(ComponentKey, path)}),
			base:    nh.base,
			path:    path,
		})
	}

	return slog.New(&namedHandler{
		Handler: l.Handler().WithAttrs([]slog.Attr{slog.String(ComponentKey, path)}),
		base:    l.Handler(),
		path:    path,
	})
}

type namedHandler struct {
	slog.Handler

	base slog.Handler
	path string
}

func (h *namedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &namedHandler{
		Handler: h.Handler.WithAttrs(attrs),
		base:    h.base.WithAttrs(attrs),
		path:    h.path,
	}
}

func (h *namedHandler) WithGroup(name string) slog.Handler {
	return &namedHandler{
		Handler: h.Handler.WithGroup(name),
		base:    h.base.WithGroup(name),
		path:    h.path,
	}
}

// Time starts a timer for label and returns a function that logs
// "<label> completed" at debug level with the elapsed duration_ms plus any
// extra attributes passed at the end.
func Time(l *slog.Logger, label string) func(args ...any) {
	start := time.Now()
	return func(args ...any) {
		attrs := append([]any{"duration_ms", time.Since(start).Milliseconds()}, args...)
		l.Debug(label+" completed", attrs...)
	}
}
