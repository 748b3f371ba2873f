package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gonum.org/v1/gonum/floats"
)

// InlineLimit is the longest numeric slice logged element by element.
// Longer slices are summarised.
const InlineLimit = 8

// NumericHandler wraps an slog.Handler and condenses long []float64 and
// []int attribute values into "n=.. min=.. max=.." summaries.
//
// Design decision: a handler wrapper rather than a custom logger, so
// every component keeps using a plain *slog.Logger and any underlying
// handler (text, JSON) works.
type NumericHandler struct {
	handler slog.Handler
}

// NewNumericHandler creates a NumericHandler wrapping handler.
// If handler is nil, slog.Default().Handler() is used.
func NewNumericHandler(handler slog.Handler) *NumericHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &NumericHandler{handler: handler}
}

// Enabled delegates to the underlying handler.
func (h *NumericHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle condenses the record's attributes and passes it on.
func (h *NumericHandler) Handle(ctx context.Context, r slog.Record) error {
	condensed := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		condensed.AddAttrs(condenseAttr(a))
		return true
	})
	return h.handler.Handle(ctx, condensed)
}

// WithAttrs returns a new handler with the condensed attributes added.
func (h *NumericHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = condenseAttr(a)
	}
	return &NumericHandler{handler: h.handler.WithAttrs(out)}
}

// WithGroup returns a new handler with the given group name.
func (h *NumericHandler) WithGroup(name string) slog.Handler {
	return &NumericHandler{handler: h.handler.WithGroup(name)}
}

func condenseAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			out[i] = condenseAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case []float64:
			if len(v) > InlineLimit {
				return slog.String(a.Key, Summarize(v))
			}
		case []int:
			if len(v) > InlineLimit {
				return slog.String(a.Key, fmt.Sprintf("n=%d", len(v)))
			}
		}
	}
	return a
}

// Summarize renders x as "n=.. min=.. max=..".
func Summarize(x []float64) string {
	if len(x) == 0 {
		return "n=0"
	}
	return fmt.Sprintf("n=%d min=%.4g max=%.4g", len(x), floats.Min(x), floats.Max(x))
}

// NewLogger creates a text logger that condenses numeric arrays.
// verbose selects Debug; otherwise only warnings and errors are logged.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewNumericHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewJSONLogger creates a JSON logger that condenses numeric arrays.
func NewJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewNumericHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
