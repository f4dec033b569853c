package applog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// resetBackend drops any installed backend and the run-once state, before and after the test.
func resetBackend(t *testing.T) *bytes.Buffer {
	t.Helper()
	prevDefault := slog.Default()
	prevStdout := stdout

	reset := func() {
		if b := installed.Swap(nil); b != nil {
			_ = b.Close(context.Background())
		}
		initOnce = &gate{}
		defaultLogger.Store(nil)
		slog.SetDefault(prevDefault)
		otel.SetTracerProvider(noop.NewTracerProvider())
		stdout = prevStdout
	}
	reset()
	t.Cleanup(reset)

	var console bytes.Buffer
	stdout = &console
	return &console
}

func readLogFile(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), "line %q", sc.Text())
		lines = append(lines, m)
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestInit_WritesFileAndConsole(t *testing.T) {
	console := resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")

	require.NoError(t, InitWithOptions(path, "shop", "api", WithDebug))
	assert.True(t, Initialized())
	require.NotNil(t, Installed())

	Debug("cart loaded", "items", 3)

	lines := readLogFile(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "cart loaded", lines[0]["msg"])
	assert.Equal(t, "shop", lines[0]["service"])
	assert.Equal(t, "api", lines[0]["component"])
	assert.Equal(t, float64(3), lines[0]["items"])

	consoleLines := bytes.Split(bytes.TrimSpace(console.Bytes()), []byte{'\n'})
	require.Len(t, consoleLines, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal(consoleLines[0], &m))
	assert.Equal(t, "cart loaded", m["msg"])
}

func TestInit_WithoutConsole(t *testing.T) {
	console := resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")

	require.NoError(t, InitWithOptions(path, "shop", "api", WithoutConsole))
	Info("file only")
	Error("still file only")

	assert.Empty(t, console.Bytes(), "nothing may reach standard output")
	assert.Len(t, readLogFile(t, path), 2)
}

func TestInit_AppendsToExistingFile(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"msg":"earlier run"}`+"\n"), 0o644))

	require.NoError(t, Init(path, "shop", "api", Settings{Level: "info"}))
	Info("this run")

	lines := readLogFile(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "earlier run", lines[0]["msg"])
	assert.Equal(t, "this run", lines[1]["msg"])
}

func TestInit_OnlyFirstCallTakesEffect(t *testing.T) {
	resetBackend(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	require.NoError(t, InitWithOptions(first, "shop", "api", WithWarn, WithoutConsole))
	b := Installed()

	require.NoError(t, InitWithOptions(second, "other", "worker", WithTrace, WithConsole))
	assert.Same(t, b, Installed())
	assert.NoFileExists(t, second)

	Info("below warn")
	Warn("kept")

	lines := readLogFile(t, first)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "shop", lines[0]["service"])
	assert.Equal(t, "api", lines[0]["component"])
}

func TestInit_Concurrent(t *testing.T) {
	resetBackend(t)
	dir := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := filepath.Join(dir, string(rune('a'+i))+".log")
			assert.NoError(t, InitWithOptions(path, "shop", "api", WithoutConsole))
		}(i)
	}
	wg.Wait()

	files, err := filepath.Glob(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	assert.Len(t, files, 1, "exactly one initialization may open a file")
	assert.True(t, Initialized())
}

func TestInit_DebugLevelWithRocketOff(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")

	require.NoError(t, Init(path, "shop", "api", Settings{Level: "debug", Filters: []string{"rocket=off"}}))
	assert.Equal(t, "debug,rocket=off", Installed().Handler().Filter().String())

	Debug("unrelated debug")
	Default().WithTarget("rocket").Info("rocket info")
	Default().WithTarget("rocket").Error("rocket error")

	lines := readLogFile(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "unrelated debug", lines[0]["msg"])
}

func TestInit_InvalidLevel(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")

	err := Init(path, "shop", "api", Settings{Level: "not-a-level", Console: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-level")

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, KindLevel, cfgErr.Kind)
	assert.Equal(t, "not-a-level", cfgErr.Value)

	assert.Nil(t, Installed(), "no backend may be installed")
	assert.False(t, Initialized())
	assert.NoFileExists(t, path)

	// Logging without a backend is a no-op.
	Error("dropped")
	assert.NoFileExists(t, path)

	// A corrected configuration may still initialize.
	require.NoError(t, Init(path, "shop", "api", Settings{Level: "info"}))
	assert.True(t, Initialized())
}

func TestInit_InvalidDirective(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")

	err := InitWithOptions(path, "shop", "api", WithFilter("tokio=warn, =debug"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "=debug")
	assert.Nil(t, Installed())
	assert.NoFileExists(t, path)

	assert.Panics(t, func() {
		MustInitWithOptions(path, "shop", "api", WithFilter("hyper=loud"))
	})
}

func TestInit_UnopenableFile(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "missing", "dir", "app.log")

	err := Init(path, "shop", "api", DefaultSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, KindFile, cfgErr.Kind)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Nil(t, Installed())
}

func TestInit_EnvironmentFilter(t *testing.T) {
	t.Run("base directives are honored", func(t *testing.T) {
		resetBackend(t)
		t.Setenv(EnvFilter, "github.com/apperia-de/applog=error,trace")
		path := filepath.Join(t.TempDir(), "app.log")

		require.NoError(t, Init(path, "shop", "api", Settings{Level: "debug"}))
		Warn("dropped by the package directive")
		Default().WithTarget("db").Trace("dropped, debug replaced the env default")
		Default().WithTarget("db").Debug("kept")

		lines := readLogFile(t, path)
		require.Len(t, lines, 1)
		assert.Equal(t, "kept", lines[0]["msg"])
	})

	t.Run("an invalid value is reported", func(t *testing.T) {
		resetBackend(t)
		t.Setenv(EnvFilter, "db=chatty")
		path := filepath.Join(t.TempDir(), "app.log")

		err := Init(path, "shop", "api", DefaultSettings())
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, KindEnv, cfgErr.Kind)
		assert.Contains(t, err.Error(), "db=chatty")
		assert.Nil(t, Installed())
	})
}

func TestInit_InstallConflictIsSwallowed(t *testing.T) {
	resetBackend(t)
	dir := t.TempDir()
	other := filepath.Join(dir, "other.log")
	mine := filepath.Join(dir, "mine.log")

	b, err := NewBackend(other, Settings{Level: "info"})
	require.NoError(t, err)
	require.NoError(t, Install(b))
	assert.ErrorIs(t, Install(b), ErrAlreadyInstalled)

	require.NoError(t, Init(mine, "shop", "api", DefaultSettings()))
	assert.Same(t, b, Installed())

	Info("where does it go")
	assert.Len(t, readLogFile(t, other), 1)
	assert.Empty(t, readLogFile(t, mine))
}

func TestLog_RecordRoundTrip(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitWithOptions(path, "shop", "api", WithoutConsole))

	New("billing", "invoices").Warn("x", "n", 1)

	lines := readLogFile(t, path)
	require.Len(t, lines, 1)
	m := lines[0]
	assert.Equal(t, "warn", m["level"])
	assert.Equal(t, "x", m["msg"])
	assert.Equal(t, float64(1), m["n"])
	assert.Equal(t, "billing", m["service"])
	assert.Equal(t, "invoices", m["component"])

	ts, ok := m["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
}

func TestLog_InjectedFieldsAlwaysPresent(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitWithOptions(path, "", "", WithTrace, WithoutConsole))

	Trace("no fields")
	Info("many fields", "a", 1, "b", "two", "c", true, slog.Group("d", "e", 5))
	Default().With("request_id", "r-1").Error("bound fields")
	Log(context.Background(), slog.LevelWarn+1, "custom level")

	lines := readLogFile(t, path)
	require.Len(t, lines, 4)
	for _, m := range lines {
		assert.NotEmpty(t, m["service"])
		assert.Equal(t, "main", m["component"])
		ts, ok := m["timestamp"].(string)
		require.True(t, ok)
		_, err := time.Parse(time.RFC3339, ts)
		assert.NoError(t, err)
	}
	assert.Equal(t, "trace", lines[0]["level"])
	assert.Equal(t, "r-1", lines[2]["request_id"])
	assert.Equal(t, "warn+1", lines[3]["level"])
}

func TestLog_NoBackendIsNoop(t *testing.T) {
	resetBackend(t)
	assert.NotPanics(t, func() {
		Info("nowhere")
		New("svc", "cmp").Error("nowhere either")
	})

	_, span := Span(context.Background(), "idle")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestNew_Defaults(t *testing.T) {
	l := New("", "")
	assert.NotEmpty(t, l.Service())
	assert.Equal(t, "main", l.Component())

	l = New("svc", "cmp")
	assert.Equal(t, "svc", l.Service())
	assert.Equal(t, "cmp", l.Component())
}

func TestSpan_Attributes(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitWithOptions(path, "shop", "checkout", WithoutConsole))

	recorder := tracetest.NewSpanRecorder()
	tp, ok := Installed().TracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
	tp.RegisterSpanProcessor(recorder)

	ctx, span := Span(context.Background(), "place-order", "items", 3, "express", true)
	_, child := Default().With("tenant", "acme").Span(ctx, "charge-card")
	child.End()
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "charge-card", ended[0].Name())
	assert.Equal(t, "place-order", ended[1].Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
	assert.Equal(t, "github.com/apperia-de/applog", ended[1].InstrumentationScope().Name, "the calling package names the tracer")

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[1].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "shop", attrs[ServiceKey].AsString())
	assert.Equal(t, "checkout", attrs[ComponentKey].AsString())
	assert.Equal(t, int64(3), attrs["items"].AsInt64())
	assert.True(t, attrs["express"].AsBool())
	_, err := time.Parse(time.RFC3339, attrs[TimestampKey].AsString())
	assert.NoError(t, err)

	var tenant string
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "tenant" {
			tenant = kv.Value.AsString()
		}
	}
	assert.Equal(t, "acme", tenant)

	assert.Empty(t, readLogFile(t, path), "spans write nothing without span events")
}

func TestSpan_Events(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init(path, "shop", "checkout", Settings{Level: "info", SpanEvents: true}))

	_, span := Span(context.Background(), "place-order", "items", 3)
	span.End()
	_, failed := Span(context.Background(), "charge-card")
	failed.SetStatus(codes.Error, "card declined")
	failed.End()

	lines := readLogFile(t, path)
	require.Len(t, lines, 2)

	assert.Equal(t, "place-order", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "shop", lines[0]["service"])
	assert.Equal(t, float64(3), lines[0]["items"])
	assert.Contains(t, lines[0], "span.duration")
	assert.Contains(t, lines[0], "timestamp")

	assert.Equal(t, "charge-card", lines[1]["msg"])
	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "card declined", lines[1]["span.status"])
}

func TestSpan_EventsFollowTarget(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init(path, "shop", "checkout", Settings{
		Level:      "info",
		Filters:    []string{"rocket=off", "github.com/apperia-de/applog=off"},
		SpanEvents: true,
	}))

	_, launch := Default().WithTarget("rocket").Span(context.Background(), "launch")
	launch.End()
	_, checkout := Default().WithTarget("shop").Span(context.Background(), "checkout")
	checkout.End()
	_, own := Span(context.Background(), "from this package")
	own.End()

	lines := readLogFile(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "checkout", lines[0]["msg"])
	assert.Equal(t, "shop", lines[0]["service"])
}

func TestLog_ReservedFieldsCannotBeShadowed(t *testing.T) {
	resetBackend(t)
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitWithOptions(path, "shop", "api", WithoutConsole))

	recorder := tracetest.NewSpanRecorder()
	tp, ok := Installed().TracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
	tp.RegisterSpanProcessor(recorder)

	Default().With("service", "evil").Info("shadowed", "timestamp", "soon", "component", "", "kept", 1)
	_, span := Span(context.Background(), "shadowed-span", "service", "", "timestamp", "soon")
	span.End()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{ServiceKey, ComponentKey, TimestampKey} {
		assert.Equal(t, 1, bytes.Count(raw, []byte(`"`+key+`":`)), key)
	}

	lines := readLogFile(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "shop", lines[0]["service"])
	assert.Equal(t, "api", lines[0]["component"])
	assert.Equal(t, float64(1), lines[0]["kept"])
	_, err = time.Parse(time.RFC3339, lines[0]["timestamp"].(string))
	assert.NoError(t, err)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	counts := map[attribute.Key]int{}
	for _, kv := range ended[0].Attributes() {
		counts[kv.Key]++
		switch kv.Key {
		case ServiceKey:
			assert.Equal(t, "shop", kv.Value.AsString())
		case TimestampKey:
			_, err := time.Parse(time.RFC3339, kv.Value.AsString())
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 1, counts[ServiceKey])
	assert.Equal(t, 1, counts[TimestampKey])
}

func TestShutdown(t *testing.T) {
	resetBackend(t)
	assert.NoError(t, Shutdown(context.Background()))

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitWithOptions(path, "shop", "api", WithoutConsole))
	Info("before shutdown")
	require.NoError(t, Shutdown(context.Background()))
	Info("after shutdown")

	_, silenced := slog.Default().Handler().(*nilHandler)
	assert.True(t, silenced, "the slog default is silenced")
	assert.NotPanics(t, func() { slog.Error("raw slog after shutdown") })

	assert.Len(t, readLogFile(t, path), 1)
}

func TestInitFromConfig(t *testing.T) {
	resetBackend(t)
	cfg, err := LoadConfig("test/data/applog.test_config.yml")
	require.NoError(t, err)
	cfg.File = filepath.Join(t.TempDir(), "from-config.log")

	require.NoError(t, InitFromConfig(cfg))
	assert.Equal(t, "shop", Default().Service())
	assert.Equal(t, "api", Default().Component())

	Default().WithTarget("rocket").Error("silenced")
	Default().WithTarget("github.com/acme/shop/db").Trace("query plan")
	Default().WithTarget("tokio").Info("silenced by tokio=warn")

	lines := readLogFile(t, cfg.File)
	require.Len(t, lines, 1)
	assert.Equal(t, "query plan", lines[0]["msg"])
	assert.Equal(t, "trace", lines[0]["level"])
}
