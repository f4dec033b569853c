package applog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
)

var (
	installed atomic.Pointer[Backend]
	initOnce  = &gate{}
)

// Install makes b the process-wide backend: the slog default logger and the
// OpenTelemetry tracer provider. It returns ErrAlreadyInstalled if a backend is
// already in place; the installed backend never changes afterwards.
func Install(b *Backend) error {
	if !installed.CompareAndSwap(nil, b) {
		return ErrAlreadyInstalled
	}
	slog.SetDefault(slog.New(b.handler))
	otel.SetTracerProvider(b.provider)
	return nil
}

// Installed returns the process-wide backend, or nil if none was installed.
func Installed() *Backend {
	return installed.Load()
}

// Init builds a backend for the file at path and installs it, binding Default()
// to service and component.
//
// Only the first successful call has any effect: later calls return nil without
// looking at their arguments. Concurrent callers wait for the first one to finish.
// A configuration error is returned and leaves nothing installed, so a later call
// may try again. If another backend was installed through Install, the new one is
// closed and Init still returns nil.
func Init(path, service, component string, s Settings) error {
	return initOnce.do(func() error {
		b, err := NewBackend(path, s)
		if err != nil {
			return err
		}
		if err := Install(b); err != nil {
			_ = b.Close(context.Background())
		}
		SetDefault(New(service, component))
		return nil
	})
}

// Initialized reports whether Init has completed successfully.
func Initialized() bool {
	return initOnce.ready()
}

// InitWithOptions resolves opts and calls Init.
func InitWithOptions(path, service, component string, opts ...Option) error {
	return Init(path, service, component, Resolve(opts...))
}

// MustInit is like Init but panics on a configuration error.
func MustInit(path, service, component string, s Settings) {
	if err := Init(path, service, component, s); err != nil {
		panic(err.Error())
	}
}

// MustInitWithOptions is like InitWithOptions but panics on a configuration error.
func MustInitWithOptions(path, service, component string, opts ...Option) {
	MustInit(path, service, component, Resolve(opts...))
}

// Shutdown flushes span events and closes the installed backend's file.
// The slog default is silenced, and records logged afterwards are dropped.
func Shutdown(ctx context.Context) error {
	b := installed.Load()
	if b == nil {
		return nil
	}
	slog.SetDefault(slog.New(NewNilHandler()))
	return b.Close(ctx)
}

type gateState int32

const (
	stateUninitialized gateState = iota
	stateInitializing
	stateReady
)

// gate runs an initialization function until it succeeds once.
type gate struct {
	mu    sync.Mutex
	state atomic.Int32
}

func (g *gate) do(fn func() error) error {
	if gateState(g.state.Load()) == stateReady {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if gateState(g.state.Load()) == stateReady {
		return nil
	}

	g.state.Store(int32(stateInitializing))
	if err := fn(); err != nil {
		g.state.Store(int32(stateUninitialized))
		return err
	}
	g.state.Store(int32(stateReady))
	return nil
}

func (g *gate) ready() bool {
	return gateState(g.state.Load()) == stateReady
}
