package applog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"
)

// Handler is a slog.Handler that checks every record against a Filter and hands
// admitted records to one or more sinks.
type Handler struct {
	filter *Filter
	sinks  []slog.Handler
	target string
	groups int
}

// NewHandler creates a new Handler. It panics if no sink is given or a sink is nil.
func NewHandler(filter *Filter, sinks ...slog.Handler) *Handler {
	if len(sinks) == 0 {
		panic("at least one slog.Handler sink is required")
	}
	for _, s := range sinks {
		switch s.(type) {
		case nil:
			panic("slog.Handler must not be nil")
		case *Handler:
			panic("slog.Handler must not be of type *Handler")
		}
	}
	if filter == nil {
		filter = NewFilter()
	}
	return &Handler{filter: filter, sinks: sinks}
}

// NewJSONSink returns the JSON line handler used for the file and console sinks.
// It writes no source location, renders the level in lower case and renames the
// record time to "timestamp" as UTC RFC 3339. Filtering is left to the Handler.
func NewJSONSink(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       slog.Level(math.MinInt32),
		ReplaceAttr: replaceAttr,
	})
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		if a.Value.Kind() != slog.KindTime {
			return a
		}
		return slog.String(TimestampKey, formatTimestamp(a.Value.Time()))
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, LevelName(lvl))
		}
	}
	return a
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Filter returns the filter the handler applies.
func (h *Handler) Filter() *Filter {
	return h.filter
}

func (h *Handler) Enabled(_ context.Context, lvl slog.Level) bool {
	if h.target != "" {
		return h.filter.Enabled(h.target, lvl)
	}
	// The record target is only known once the record carries its PC.
	return lvl >= h.filter.MinLevel()
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	target := h.target
	if target == "" {
		target = getCallerInfo(rec.PC).PackageName
	}
	return h.handle(ctx, target, rec)
}

func (h *Handler) handle(ctx context.Context, target string, rec slog.Record) error {
	if !h.filter.Enabled(target, rec.Level) {
		return nil
	}
	var errs []error
	for _, s := range h.sinks {
		if !s.Enabled(ctx, rec.Level) {
			continue
		}
		if err := s.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs binds attrs to every sink. A top-level "target" attribute is not
// written; it sets the filter target for records logged through the result.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	rest := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		if h.groups == 0 && a.Key == TargetKey {
			h2.target = a.Value.String()
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) > 0 {
		for i, s := range h2.sinks {
			h2.sinks[i] = s.WithAttrs(rest)
		}
	}
	return h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups++
	for i, s := range h2.sinks {
		h2.sinks[i] = s.WithGroup(name)
	}
	return h2
}

// WithTarget returns a handler that filters every record as coming from target.
func (h *Handler) WithTarget(target string) *Handler {
	h2 := h.clone()
	h2.target = target
	return h2
}

func (h *Handler) clone() *Handler {
	h2 := *h
	h2.sinks = append([]slog.Handler(nil), h.sinks...)
	return &h2
}

type nilHandler struct{}

// NewNilHandler provides a nil slog.Handler for silencing slog.Log() calls.
func NewNilHandler() slog.Handler {
	return &nilHandler{}
}

func (h *nilHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return false
}

func (h *nilHandler) Handle(_ context.Context, _ slog.Record) error {
	return nil
}

func (h *nilHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

func (h *nilHandler) WithGroup(_ string) slog.Handler {
	return h
}
