package applog

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// Logger emits records tagged with a service and a component through the
// installed backend. Records are dropped while no backend is installed.
type Logger struct {
	service   string
	component string
	target    string
	attrs     []slog.Attr
}

var defaultLogger atomic.Pointer[Logger]

// New returns a Logger for service and component. An empty service falls back to
// the program name and an empty component to "main".
func New(service, component string) *Logger {
	if service == "" {
		service = programName()
	}
	if component == "" {
		component = defaultComponent
	}
	return &Logger{service: service, component: component}
}

// Default returns the Logger used by the package-level functions.
// Until Init binds its own, it is New("", "").
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := New("", "")
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	return defaultLogger.Load()
}

// SetDefault makes l the Logger used by the package-level functions.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Service returns the service name injected into every record.
func (l *Logger) Service() string { return l.service }

// Component returns the component name injected into every record.
func (l *Logger) Component() string { return l.component }

// With returns a Logger that adds args, given as in slog.Logger.With, to every record.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	l2 := *l
	l2.attrs = append(append([]slog.Attr(nil), l.attrs...), withoutReserved(argsToAttrs(args))...)
	return &l2
}

// WithTarget returns a Logger whose records are filtered as coming from target
// instead of the calling package.
func (l *Logger) WithTarget(target string) *Logger {
	l2 := *l
	l2.target = target
	return &l2
}

func (l *Logger) Trace(msg string, args ...any) {
	l.emit(context.Background(), LevelTrace, msg, args)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.emit(context.Background(), slog.LevelDebug, msg, args)
}

func (l *Logger) Info(msg string, args ...any) {
	l.emit(context.Background(), slog.LevelInfo, msg, args)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.emit(context.Background(), slog.LevelWarn, msg, args)
}

func (l *Logger) Error(msg string, args ...any) {
	l.emit(context.Background(), slog.LevelError, msg, args)
}

// Log emits a record at an arbitrary level.
func (l *Logger) Log(ctx context.Context, lvl slog.Level, msg string, args ...any) {
	l.emit(ctx, lvl, msg, args)
}

// emit must be called directly from an exported function so that the recorded
// PC points at the caller's code.
func (l *Logger) emit(ctx context.Context, lvl slog.Level, msg string, args []any) {
	b := installed.Load()
	if b == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip [Callers, emit, exported function]

	target := l.target
	if target == "" {
		target = getCallerInfo(pcs[0]).PackageName
	}
	if !b.handler.filter.Enabled(target, lvl) {
		return
	}

	now := time.Now()
	r := slog.NewRecord(now, lvl, msg, pcs[0])
	r.AddAttrs(
		slog.String(ServiceKey, l.service),
		slog.String(ComponentKey, l.component),
	)
	r.AddAttrs(l.attrs...)
	r.AddAttrs(withoutReserved(argsToAttrs(args))...)
	_ = b.handler.handle(ctx, target, r)
}

// Trace logs at trace level with the default Logger.
func Trace(msg string, args ...any) {
	Default().emit(context.Background(), LevelTrace, msg, args)
}

// Debug logs at debug level with the default Logger.
func Debug(msg string, args ...any) {
	Default().emit(context.Background(), slog.LevelDebug, msg, args)
}

// Info logs at info level with the default Logger.
func Info(msg string, args ...any) {
	Default().emit(context.Background(), slog.LevelInfo, msg, args)
}

// Warn logs at warn level with the default Logger.
func Warn(msg string, args ...any) {
	Default().emit(context.Background(), slog.LevelWarn, msg, args)
}

// Error logs at error level with the default Logger.
func Error(msg string, args ...any) {
	Default().emit(context.Background(), slog.LevelError, msg, args)
}

// Log logs at lvl with the default Logger.
func Log(ctx context.Context, lvl slog.Level, msg string, args ...any) {
	Default().emit(ctx, lvl, msg, args)
}

// argsToAttrs turns slog style key/value arguments into attributes.
func argsToAttrs(args []any) []slog.Attr {
	return slog.Group("", args...).Value.Group()
}

// withoutReserved drops top-level attributes named like the injected service,
// component and timestamp fields, so a caller cannot shadow them.
func withoutReserved(attrs []slog.Attr) []slog.Attr {
	kept := attrs[:0:0]
	for _, a := range attrs {
		switch a.Key {
		case ServiceKey, ComponentKey, TimestampKey:
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
