// internal/browser/handles/context.go
package handles

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
	"github.com/xkilldash9x/wdatoms/internal/observability"
)

// Prefix namespaces every handle so it cannot collide with ordinary strings.
const Prefix = ":wdc:"

// Messages carried by resolve failures. Callers match on them.
const (
	MsgNotInCache    = "Element does not exist in cache"
	MsgDetached      = "Element is no longer attached to the DOM"
	MsgWindowClosed  = "Window has been closed."
	MsgInactiveFrame = "document is no longer active"
)

type entry struct {
	node   *html.Node
	window *dom.Window
}

func (e entry) object() any {
	if e.window != nil {
		return e.window
	}
	return e.node
}

// Context is the execution context of one document: the handle table shared
// by every command that runs against it.
type Context struct {
	id      string
	doc     *html.Node
	logger  *zap.Logger
	metrics *observability.Metrics

	// exec serializes whole commands; mu guards the tables.
	exec sync.Mutex

	mu       sync.Mutex
	counter  int
	byHandle map[string]entry
	byObject map[any]string
	// stale holds handles minted by documents this one replaced in the same
	// window, so they resolve as stale rather than unknown.
	stale map[string]struct{}
	// tomb is filled on retirement for the successor to inherit.
	tomb    map[string]struct{}
	retired bool
}

func newContext(doc *html.Node, logger *zap.Logger, metrics *observability.Metrics) *Context {
	id := uuid.New().String()
	return &Context{
		id:       id,
		doc:      doc,
		logger:   logger.With(zap.String("context_id", id)),
		metrics:  metrics,
		byHandle: make(map[string]entry),
		byObject: make(map[any]string),
		stale:    make(map[string]struct{}),
	}
}

// ID returns a unique identifier used in logs.
func (c *Context) ID() string { return c.id }

// Document returns the document root this context belongs to.
func (c *Context) Document() *html.Node { return c.doc }

// Len is the number of live handles.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byHandle)
}

// Do runs fn while holding the context's execution lock, so commands against
// one document never interleave.
func (c *Context) Do(fn func()) {
	c.exec.Lock()
	defer c.exec.Unlock()
	fn()
}

// Mint returns the handle for obj, allocating one the first time obj is seen.
// Lookup is by identity: two distinct nodes that render identically get
// distinct handles. obj must be a non-nil *html.Node or *dom.Window.
func (c *Context) Mint(obj any) (string, error) {
	var e entry
	switch o := obj.(type) {
	case *html.Node:
		if o == nil {
			return "", errcode.New(errcode.UnknownError, "cannot reference a nil node")
		}
		e.node = o
	case *dom.Window:
		if o == nil {
			return "", errcode.New(errcode.UnknownError, "cannot reference a nil window")
		}
		e.window = o
	default:
		return "", errcode.New(errcode.UnknownError, "cannot reference a value of type %T", obj)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return "", errcode.New(errcode.StaleElementReference, MsgInactiveFrame)
	}

	key := e.object()
	if h, ok := c.byObject[key]; ok {
		return h, nil
	}
	h := Prefix + strconv.Itoa(c.counter)
	c.counter++
	c.byHandle[h] = e
	c.byObject[key] = h
	delete(c.stale, h)
	c.metrics.HandleMinted()

	if e.node != nil {
		c.logger.Debug("Minted element handle.", zap.String("handle", h), zap.String("xpath", dom.XPathOf(e.node)))
	} else {
		c.logger.Debug("Minted window handle.", zap.String("handle", h), zap.String("window_id", e.window.ID()))
	}
	return h, nil
}

// Resolve returns the live object behind a handle. Staleness is checked here:
// a closed window or a node no longer under the document is evicted and
// reported instead of returned.
func (c *Context) Resolve(handle string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return nil, errcode.New(errcode.StaleElementReference, MsgInactiveFrame)
	}

	e, ok := c.byHandle[handle]
	if !ok {
		if _, wasStale := c.stale[handle]; wasStale {
			return nil, errcode.New(errcode.StaleElementReference, MsgDetached)
		}
		return nil, errcode.New(errcode.NoSuchElement, MsgNotInCache)
	}

	if e.window != nil {
		if e.window.Closed() {
			c.evictLocked(handle, e, "window_closed")
			return nil, errcode.New(errcode.NoSuchWindow, MsgWindowClosed)
		}
		return e.window, nil
	}

	if !dom.IsAttached(e.node, c.doc) {
		c.evictLocked(handle, e, "detached")
		return nil, errcode.New(errcode.StaleElementReference, MsgDetached)
	}
	return e.node, nil
}

// ResolveElement is Resolve for callers that need a DOM node.
func (c *Context) ResolveElement(handle string) (*html.Node, error) {
	obj, err := c.Resolve(handle)
	if err != nil {
		return nil, err
	}
	n, ok := obj.(*html.Node)
	if !ok {
		return nil, errcode.New(errcode.NoSuchElement, MsgNotInCache)
	}
	return n, nil
}

// ResolveWindow is Resolve for callers that need a window.
func (c *Context) ResolveWindow(handle string) (*dom.Window, error) {
	obj, err := c.Resolve(handle)
	if err != nil {
		return nil, err
	}
	w, ok := obj.(*dom.Window)
	if !ok {
		return nil, errcode.New(errcode.NoSuchWindow, "Handle %s does not refer to a window", handle)
	}
	return w, nil
}

// evictLocked drops one entry. The handle is remembered as stale and the
// counter is left alone, so the string is never handed out again.
func (c *Context) evictLocked(handle string, e entry, reason string) {
	delete(c.byHandle, handle)
	delete(c.byObject, e.object())
	c.stale[handle] = struct{}{}
	c.metrics.HandleEvicted(reason)
	c.logger.Debug("Evicted handle.", zap.String("handle", handle), zap.String("reason", reason))
}

// markRetired kills the context. Its handles survive only as names, which
// the document replacing it in the same window inherits as stale.
func (c *Context) markRetired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return
	}
	c.retired = true
	tomb := make(map[string]struct{}, len(c.byHandle)+len(c.stale))
	for h := range c.stale {
		tomb[h] = struct{}{}
	}
	for h := range c.byHandle {
		tomb[h] = struct{}{}
	}
	c.tomb = tomb
	c.byHandle = nil
	c.byObject = nil
	c.stale = nil
}

// inherit copies the handle names of a retired predecessor into the stale set
// and continues its counter, so a name minted here never repeats one handed
// out for the old document.
func (c *Context) inherit(prev *Context) {
	prev.mu.Lock()
	tomb, counter := prev.tomb, prev.counter
	prev.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if counter > c.counter {
		c.counter = counter
	}
	for h := range tomb {
		if _, live := c.byHandle[h]; !live {
			c.stale[h] = struct{}{}
		}
	}
}

// Retired reports whether the document this context served has gone away.
func (c *Context) Retired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retired
}
