package applog

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/apperia-de/applog"

// Span starts a span named name carrying service, component, timestamp and args
// as attributes. The caller must end it. Without an installed backend the span is
// a no-op.
//
// The span's instrumentation scope is the Logger's target, or the calling package
// when it has none; span events are filtered by that scope.
func (l *Logger) Span(ctx context.Context, name string, args ...any) (context.Context, trace.Span) {
	return l.startSpan(ctx, name, args)
}

// Span starts a span with the default Logger.
func Span(ctx context.Context, name string, args ...any) (context.Context, trace.Span) {
	return Default().startSpan(ctx, name, args)
}

// startSpan must be called directly from an exported function so that the
// calling package can be resolved.
func (l *Logger) startSpan(ctx context.Context, name string, args []any) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	target := l.target
	if target == "" {
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:]) // skip [Callers, startSpan, exported function]
		target = getCallerInfo(pcs[0]).PackageName
	}
	if target == "" {
		target = tracerName
	}

	var tp trace.TracerProvider = noop.NewTracerProvider()
	if b := installed.Load(); b != nil {
		tp = b.provider
	}

	now := time.Now()
	kvs := []attribute.KeyValue{
		attribute.String(ServiceKey, l.service),
		attribute.String(ComponentKey, l.component),
		attribute.String(TimestampKey, formatTimestamp(now)),
	}
	kvs = appendAttributes(kvs, "", l.attrs)
	kvs = appendAttributes(kvs, "", withoutReserved(argsToAttrs(args)))

	return tp.Tracer(target).Start(ctx, name,
		trace.WithTimestamp(now),
		trace.WithAttributes(kvs...),
	)
}

// appendAttributes converts slog attributes into OpenTelemetry attributes.
// Groups are flattened with dotted keys.
func appendAttributes(kvs []attribute.KeyValue, prefix string, attrs []slog.Attr) []attribute.KeyValue {
	for _, a := range attrs {
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		v := a.Value.Resolve()
		switch v.Kind() {
		case slog.KindString:
			kvs = append(kvs, attribute.String(key, v.String()))
		case slog.KindInt64:
			kvs = append(kvs, attribute.Int64(key, v.Int64()))
		case slog.KindUint64:
			kvs = append(kvs, attribute.Int64(key, int64(v.Uint64())))
		case slog.KindFloat64:
			kvs = append(kvs, attribute.Float64(key, v.Float64()))
		case slog.KindBool:
			kvs = append(kvs, attribute.Bool(key, v.Bool()))
		case slog.KindDuration:
			kvs = append(kvs, attribute.String(key, v.Duration().String()))
		case slog.KindTime:
			kvs = append(kvs, attribute.String(key, formatTimestamp(v.Time())))
		case slog.KindGroup:
			p := key
			if a.Key == "" {
				p = prefix
			}
			kvs = appendAttributes(kvs, p, v.Group())
		default:
			kvs = append(kvs, attribute.String(key, fmt.Sprint(v.Any())))
		}
	}
	return kvs
}

// spanEventProcessor writes one record per finished span through a Handler.
type spanEventProcessor struct {
	h *Handler
}

func newSpanEventProcessor(h *Handler) *spanEventProcessor {
	return &spanEventProcessor{h: h}
}

func (p *spanEventProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *spanEventProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	lvl := slog.LevelInfo
	if s.Status().Code == codes.Error {
		lvl = slog.LevelError
	}
	// Spans started through a Logger use its target as the tracer name.
	target := s.InstrumentationScope().Name
	if !p.h.filter.Enabled(target, lvl) {
		return
	}

	r := slog.NewRecord(s.EndTime(), lvl, s.Name(), 0)
	r.AddAttrs(
		slog.String("span.start", formatTimestamp(s.StartTime())),
		slog.Duration("span.duration", s.EndTime().Sub(s.StartTime())),
	)
	for _, kv := range s.Attributes() {
		// The record time already becomes the timestamp field.
		if string(kv.Key) == TimestampKey {
			continue
		}
		r.AddAttrs(attributeToAttr(kv))
	}
	if desc := s.Status().Description; desc != "" {
		r.AddAttrs(slog.String("span.status", desc))
	}
	_ = p.h.handle(context.Background(), target, r)
}

func (p *spanEventProcessor) Shutdown(context.Context) error { return nil }

func (p *spanEventProcessor) ForceFlush(context.Context) error { return nil }

func attributeToAttr(kv attribute.KeyValue) slog.Attr {
	key := string(kv.Key)
	switch kv.Value.Type() {
	case attribute.BOOL:
		return slog.Bool(key, kv.Value.AsBool())
	case attribute.INT64:
		return slog.Int64(key, kv.Value.AsInt64())
	case attribute.FLOAT64:
		return slog.Float64(key, kv.Value.AsFloat64())
	case attribute.STRING:
		return slog.String(key, kv.Value.AsString())
	default:
		return slog.String(key, kv.Value.Emit())
	}
}
