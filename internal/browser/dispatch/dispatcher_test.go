package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/browser/dispatch"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/browser/handles"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
	"github.com/xkilldash9x/wdatoms/internal/observability"
)

type fixture struct {
	registry *dispatch.Registry
	cache    *handles.Cache
	d        *dispatch.Dispatcher
	win      *dom.Window
}

func newFixture(t *testing.T, opts ...dispatch.Option) *fixture {
	t.Helper()
	f := &fixture{registry: dispatch.NewRegistry(), cache: handles.NewCache()}
	f.win = dom.NewWindow()
	f.win.OnUnload(f.cache.Retire)
	require.NoError(t, f.win.LoadString(`<body><p id="p">text</p><input id="in"></body>`, "https://dispatch.test/"))
	opts = append([]dispatch.Option{dispatch.WithLogger(zaptest.NewLogger(t))}, opts...)
	f.d = dispatch.New(f.registry, f.cache, opts...)
	return f
}

func (f *fixture) mint(t *testing.T, id string) string {
	t.Helper()
	n, err := dom.Find(f.win.Document(), "id", id)
	require.NoError(t, err)
	exec, err := f.cache.ContextFor(f.win)
	require.NoError(t, err)
	h, err := exec.Mint(n)
	require.NoError(t, err)
	return h
}

func TestDispatchSuccessEncodesResult(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister("FIND_P", func(ctx context.Context, call *dispatch.Call) (any, error) {
		return dom.Find(call.Window.Document(), "id", "p")
	})
	f.registry.MustRegister("ECHO", func(ctx context.Context, call *dispatch.Call) (any, error) {
		return call.Args, nil
	})

	env := f.d.Dispatch(context.Background(), f.win, "FIND_P", nil)
	assert.Equal(t, `{"status":0,"value":{"ELEMENT":":wdc:0"}}`, env.String())

	// Feed the handle back in: it decodes to the live node and re-encodes to
	// the same handle.
	env = f.d.Dispatch(context.Background(), f.win, "ECHO", []schemas.Value{env.Value, schemas.Int(3)})
	assert.Equal(t, `{"status":0,"value":[{"ELEMENT":":wdc:0"},3]}`, env.String())
}

func TestDispatchUnknownCommandNeverRuns(t *testing.T) {
	f := newFixture(t)
	ran := false
	f.registry.MustRegister("KNOWN", func(context.Context, *dispatch.Call) (any, error) {
		ran = true
		return nil, nil
	})

	env := f.d.Dispatch(context.Background(), f.win, "NOPE", nil)
	assert.Equal(t, int(errcode.UnknownCommand), env.Status)
	assert.Equal(t, "Unknown command: NOPE", env.Message())
	assert.False(t, ran)
}

func TestDispatchErrorClassification(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister("TYPED", func(context.Context, *dispatch.Call) (any, error) {
		return nil, fmt.Errorf("wrapped: %w", errcode.New(errcode.ElementNotVisible, "Element is not currently visible"))
	})
	f.registry.MustRegister("PLAIN", func(context.Context, *dispatch.Call) (any, error) {
		return nil, errors.New("boom")
	})
	f.registry.MustRegister("PANIC", func(context.Context, *dispatch.Call) (any, error) {
		panic("kaboom")
	})
	f.registry.MustRegister("TIMEOUT", func(ctx context.Context, _ *dispatch.Call) (any, error) {
		return nil, context.DeadlineExceeded
	})

	tests := []struct {
		command string
		status  errcode.Code
		message string
	}{
		{"TYPED", errcode.ElementNotVisible, "Element is not currently visible"},
		{"PLAIN", errcode.UnknownError, "boom"},
		{"PANIC", errcode.UnknownError, "kaboom"},
		{"TIMEOUT", errcode.ScriptTimeout, context.DeadlineExceeded.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			env := f.d.Dispatch(context.Background(), f.win, tt.command, nil)
			assert.Equal(t, int(tt.status), env.Status)
			assert.Equal(t, tt.message, env.Message())
		})
	}
}

func TestDispatchArgumentResolution(t *testing.T) {
	f := newFixture(t)
	called := 0
	f.registry.MustRegister("TOUCH", func(_ context.Context, call *dispatch.Call) (any, error) {
		called++
		_, err := call.Element(0)
		return nil, err
	})

	t.Run("never minted", func(t *testing.T) {
		env := f.d.DispatchJSON(context.Background(), f.win, "TOUCH", `[{"ELEMENT":":wdc:99"}]`)
		assert.Equal(t, `{"status":7,"value":{"message":"Element does not exist in cache"}}`, env)
	})

	t.Run("detached", func(t *testing.T) {
		h := f.mint(t, "in")
		n, _ := dom.Find(f.win.Document(), "id", "in")
		dom.Remove(n)
		env := f.d.Dispatch(context.Background(), f.win, "TOUCH", []schemas.Value{schemas.ElementRef(h)})
		assert.Equal(t, int(errcode.StaleElementReference), env.Status)
		assert.Equal(t, "Element is no longer attached to the DOM", env.Message())
	})

	t.Run("wrong type", func(t *testing.T) {
		env := f.d.Dispatch(context.Background(), f.win, "TOUCH", []schemas.Value{schemas.String("x")})
		assert.Equal(t, int(errcode.UnknownError), env.Status)
		assert.Contains(t, env.Message(), "argument 0 must be an element")
	})

	t.Run("malformed json", func(t *testing.T) {
		env := f.d.DispatchJSON(context.Background(), f.win, "TOUCH", `{"not":"an array"}`)
		parsed, err := schemas.ParseEnvelope(env)
		require.NoError(t, err)
		assert.Equal(t, int(errcode.UnknownError), parsed.Status)
		assert.NotEmpty(t, parsed.Message())
	})

	assert.Equal(t, 1, called, "decode failures never reach the operation")
}

func TestDispatchClosedWindow(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister("NOOP", func(context.Context, *dispatch.Call) (any, error) { return nil, nil })
	f.win.Close()

	env := f.d.Dispatch(context.Background(), f.win, "NOOP", nil)
	assert.Equal(t, int(errcode.NoSuchWindow), env.Status)
	assert.Equal(t, "Window has been closed.", env.Message())
}

func TestNestedDispatchDoesNotDeadlock(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister("INNER", func(context.Context, *dispatch.Call) (any, error) { return "inner", nil })
	f.registry.MustRegister("OUTER", func(ctx context.Context, call *dispatch.Call) (any, error) {
		env := f.d.Dispatch(ctx, call.Window, "INNER", nil)
		return env.Value, nil
	})

	env := f.d.Dispatch(context.Background(), f.win, "OUTER", nil)
	assert.Equal(t, `{"status":0,"value":"inner"}`, env.String())
}

func TestDispatchSerializesPerContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)

	var mu sync.Mutex
	active, peak := 0, 0
	f.registry.MustRegister("SLOW", func(context.Context, *dispatch.Call) (any, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		for i := 0; i < 1000; i++ {
			_ = html.EscapeString("<spin>")
		}
		mu.Lock()
		active--
		mu.Unlock()
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env := f.d.Dispatch(context.Background(), f.win, "SLOW", nil)
			assert.Equal(t, 0, env.Status)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}

func TestDispatchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	f := newFixture(t, dispatch.WithMetrics(metrics))
	f.registry.MustRegister("NOOP", func(context.Context, *dispatch.Call) (any, error) { return nil, nil })

	f.d.Dispatch(context.Background(), f.win, "NOOP", nil)
	f.d.Dispatch(context.Background(), f.win, "NOOP", nil)
	for i := 0; i < 20; i++ {
		f.d.Dispatch(context.Background(), f.win, fmt.Sprintf("MISSING_%d", i), nil)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Commands.WithLabelValues("NOOP", "0")))
	assert.Equal(t, 20.0, testutil.ToFloat64(metrics.Commands.WithLabelValues(dispatch.UnregisteredLabel, "9")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.Commands), "unknown names share one series")
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.CommandDuration))
}

func TestRegistry(t *testing.T) {
	r := dispatch.NewRegistry()
	op := func(context.Context, *dispatch.Call) (any, error) { return nil, nil }

	require.NoError(t, r.Register("B", op))
	require.NoError(t, r.Register("A", op))
	assert.Error(t, r.Register("A", op))
	assert.Error(t, r.Register("", op))
	assert.Error(t, r.Register("C", nil))
	assert.Panics(t, func() { r.MustRegister("B", op) })

	assert.Equal(t, []string{"A", "B"}, r.Names())
	_, ok := r.Lookup("A")
	assert.True(t, ok)
	_, ok = r.Lookup("Z")
	assert.False(t, ok)
}
