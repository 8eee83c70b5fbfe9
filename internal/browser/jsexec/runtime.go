// internal/browser/jsexec/runtime.go
package jsexec

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

// DefaultTimeout is the fallback execution timeout if the context has no deadline.
const DefaultTimeout = 30 * time.Second

// Runtime evaluates page scripts with goja. Each window gets its own VM bound
// to its current document; the VM is rebuilt when the window navigates.
type Runtime struct {
	logger  *zap.Logger
	timeout time.Duration

	// execMutex serializes script execution across all VMs.
	execMutex sync.Mutex
	bridges   map[*dom.Window]*bridge
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRuntime creates a runtime with no VMs yet.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
		bridges: make(map[*dom.Window]*bridge),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("jsexec")
	return r
}

// bridgeFor returns the VM for win, rebuilding it after navigation. Closed
// windows are pruned on the way.
func (r *Runtime) bridgeFor(win *dom.Window) *bridge {
	for w := range r.bridges {
		if w.Closed() {
			delete(r.bridges, w)
		}
	}
	b, ok := r.bridges[win]
	if ok && b.doc == win.Document() {
		return b
	}
	b = newBridge(win, r.logger)
	r.bridges[win] = b
	return b
}

// Run executes script in win. A script that is itself a function expression
// is called with args; anything else is treated as a function body with the
// arguments available through `arguments`. The result is converted back to
// Go values, with page elements returned as their *html.Node.
func (r *Runtime) Run(ctx context.Context, win *dom.Window, script string, args []any) (any, error) {
	r.execMutex.Lock()
	defer r.execMutex.Unlock()

	if win.Closed() {
		return nil, errcode.New(errcode.NoSuchWindow, "Window has been closed.")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	b := r.bridgeFor(win)
	// The watcher stays up through conversion: getters run script and large
	// results take time to walk.
	stop := r.watch(ctx, b.vm)
	defer stop()
	value, err := r.call(b, script, args)
	if err != nil {
		return nil, r.translate(ctx, err)
	}

	result, err := b.export(ctx, value)
	if err != nil {
		return nil, err
	}
	if p, ok := result.(*goja.Promise); ok {
		return r.settle(ctx, b, p)
	}
	return result, nil
}

// watch interrupts vm when ctx ends. The returned func stops the watcher and
// clears any interrupt that raced with a normal return.
func (r *Runtime) watch(ctx context.Context, vm *goja.Runtime) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		wg.Wait()
		vm.ClearInterrupt()
	}
}

func (r *Runtime) call(b *bridge, script string, args []any) (goja.Value, error) {
	source := "(function() {\n" + script + "\n})"
	if isFunctionWrapper(script) {
		source = "(" + strings.TrimRight(strings.TrimSpace(script), ";") + ")"
	}
	program, err := goja.Compile("script", source, false)
	if err != nil {
		return nil, fmt.Errorf("compiling script: %w", err)
	}
	value, err := b.vm.RunProgram(program)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		// A wrapper that evaluated to something other than a function, such
		// as an IIFE, already produced its result.
		return value, nil
	}

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = b.toJS(a)
	}
	return fn(b.vm.GlobalObject(), jsArgs...)
}

// settle reports a promise's outcome. There is no event loop, so only
// promises that resolved synchronously can be waited for.
func (r *Runtime) settle(ctx context.Context, b *bridge, p *goja.Promise) (any, error) {
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return b.export(ctx, p.Result())
	case goja.PromiseStateRejected:
		reason := p.Result()
		msg := "undefined"
		if reason != nil {
			msg = reason.String()
		}
		return nil, errcode.New(errcode.JavaScriptError, "promise rejected: %s", msg)
	}
	return nil, errcode.New(errcode.ScriptTimeout, "Script returned a promise that never settled")
}

func (r *Runtime) translate(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		r.logger.Debug("Script interrupted.", zap.Error(ctx.Err()))
		return fmt.Errorf("script interrupted: %w", ctx.Err())
	}
	// Errors thrown by the bindings keep their code.
	var coded *errcode.Error
	if errors.As(err, &coded) {
		return coded
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return errcode.Wrap(errcode.JavaScriptError, err, "%s", exception.Value().String())
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return errcode.Wrap(errcode.JavaScriptError, err, "%s", syntax.Error())
	}
	return errcode.Wrap(errcode.JavaScriptError, err, "%v", err)
}

var wrapperPattern = regexp.MustCompile(`^\(?\s*(async\s*)?(function\b|\([^()]*\)\s*=>)`)

// isFunctionWrapper reports whether script is already a function expression.
func isFunctionWrapper(script string) bool {
	return wrapperPattern.MatchString(strings.TrimSpace(script))
}
