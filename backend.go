package applog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// stdout is the console sink destination.
var stdout io.Writer = os.Stdout

// Backend is the combination of sinks, filter and tracer provider that serves
// every record and span once installed.
type Backend struct {
	file     *os.File
	handler  *Handler
	provider *sdktrace.TracerProvider
}

// NewBackend builds a backend writing JSON lines to the file at path.
//
// The filter is assembled first: directives from the APPLOG_FILTER environment
// variable, then s.Level as the default level, then s.Filters. Only when all of
// them parse is the file opened, so a *ConfigError never leaves an open file behind.
func NewBackend(path string, s Settings) (*Backend, error) {
	filter, err := buildFilter(s)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &ConfigError{Kind: KindFile, Value: path, Err: err}
	}

	sinks := []slog.Handler{NewJSONSink(f)}
	if s.Console {
		sinks = append(sinks, NewJSONSink(stdout))
	}
	h := NewHandler(filter, sinks...)

	opts := []sdktrace.TracerProviderOption{}
	if s.SpanEvents {
		opts = append(opts, sdktrace.WithSpanProcessor(newSpanEventProcessor(h)))
	}

	return &Backend{
		file:     f,
		handler:  h,
		provider: sdktrace.NewTracerProvider(opts...),
	}, nil
}

func buildFilter(s Settings) (*Filter, error) {
	filter := NewFilter()

	if env, ok := os.LookupEnv(EnvFilter); ok && strings.TrimSpace(env) != "" {
		if err := filter.AddDirectives(env); err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				cfgErr.Kind = KindEnv
			}
			return nil, err
		}
	}

	level := s.Level
	if level == "" {
		level = defaultLogLevel
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, &ConfigError{Kind: KindLevel, Value: level, Err: err}
	}
	filter.Add(Directive{Level: lvl})

	if len(s.Filters) > 0 {
		if err := filter.AddDirectives(strings.Join(s.Filters, ",")); err != nil {
			return nil, err
		}
	}
	return filter, nil
}

// Handler returns the handler records are routed through.
func (b *Backend) Handler() *Handler {
	return b.handler
}

// TracerProvider returns the provider spans are started from.
func (b *Backend) TracerProvider() trace.TracerProvider {
	return b.provider
}

// Close flushes pending span events and closes the log file.
func (b *Backend) Close(ctx context.Context) error {
	return errors.Join(b.provider.Shutdown(ctx), b.file.Close())
}
