// internal/browser/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/browser/codec"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/browser/handles"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
	"github.com/xkilldash9x/wdatoms/internal/observability"
)

// heldKey marks a context.Context as already running inside an execution
// context, so nested dispatches against the same document do not deadlock.
type heldKey struct{}

// Dispatcher is the single entry point for running commands. Every outcome,
// including panics inside an operation, comes back as an envelope.
type Dispatcher struct {
	registry *Registry
	cache    *handles.Cache
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics records command counts and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher over an explicit registry and handle cache.
func New(registry *Registry, cache *handles.Cache, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		cache:    cache,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("dispatch")
	return d
}

// UnregisteredLabel is the metrics label for commands with no registered
// operation.
const UnregisteredLabel = "unknown"

// Registry returns the operation registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs command against win with wire-format arguments and returns the
// structured envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, win *dom.Window, command string, args []schemas.Value) (env schemas.Envelope) {
	start := time.Now()
	label := command
	defer func() {
		d.metrics.ObserveCommand(label, env.Status, time.Since(start))
	}()

	op, ok := d.registry.Lookup(command)
	if !ok {
		// Caller-supplied names must not mint metric series.
		label = UnregisteredLabel
		return d.failure(command, errcode.New(errcode.UnknownCommand, "Unknown command: %s", command))
	}

	exec, err := d.cache.ContextFor(win)
	if err != nil {
		return d.failure(command, err)
	}

	if held, _ := ctx.Value(heldKey{}).(*handles.Context); held == exec {
		return d.run(ctx, exec, win, command, op, args)
	}
	exec.Do(func() {
		env = d.run(context.WithValue(ctx, heldKey{}, exec), exec, win, command, op, args)
	})
	return env
}

// DispatchJSON is Dispatch for hosts that only exchange strings: argsJSON is a
// JSON array of wire values and the result is the envelope's wire text.
func (d *Dispatcher) DispatchJSON(ctx context.Context, win *dom.Window, command, argsJSON string) string {
	args, err := schemas.ParseValues(argsJSON)
	if err != nil {
		return d.failure(command, errcode.Wrap(errcode.UnknownError, err, "")).String()
	}
	return d.Dispatch(ctx, win, command, args).String()
}

func (d *Dispatcher) run(ctx context.Context, exec *handles.Context, win *dom.Window, command string, op Operation, args []schemas.Value) (env schemas.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Operation panicked.",
				zap.String("command", command),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			env = d.failure(command, errcode.New(errcode.UnknownError, "%s", panicMessage(r)))
		}
	}()

	decoded, err := codec.DecodeArgs(exec, args)
	if err != nil {
		return d.failure(command, err)
	}

	call := &Call{
		Command: command,
		Window:  win,
		Exec:    exec,
		Args:    decoded,
		Logger:  d.logger.With(zap.String("command", command)),
	}
	result, err := op(ctx, call)
	if err != nil {
		return d.failure(command, err)
	}

	d.logger.Debug("Command succeeded.", zap.String("command", command))
	return schemas.Succeeded(codec.Encode(exec, result))
}

func (d *Dispatcher) failure(command string, err error) schemas.Envelope {
	classified := errcode.FromError(err)
	level := d.logger.Debug
	if classified.Code == errcode.UnknownError {
		level = d.logger.Warn
	}
	level("Command failed.",
		zap.String("command", command),
		zap.Int("status", int(classified.Code)),
		zap.String("error_name", classified.Code.String()),
		zap.Error(err),
	)
	return schemas.Failed(int(classified.Code), classified.Error())
}

func panicMessage(r any) string {
	switch v := r.(type) {
	case error:
		return v.Error()
	case string:
		return v
	}
	return fmt.Sprintf("%v", r)
}
