// internal/browser/handles/cache.go
package handles

import (
	"sync"
	"weak"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
	"github.com/xkilldash9x/wdatoms/internal/observability"
)

// Cache owns the execution contexts of every document a session has shown.
// Contexts are keyed on document identity, so a frame reached through two
// different paths always shares one handle table.
type Cache struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	contexts map[*html.Node]*Context
	// retired remembers dead documents without keeping their trees alive.
	retired map[weak.Pointer[html.Node]]struct{}
	// last is the most recent context per window; its handle names become
	// the stale set of whatever document the window shows next.
	last map[*dom.Window]*Context
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records mint, eviction and context counts.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		logger:   zap.NewNop(),
		contexts: make(map[*html.Node]*Context),
		retired:  make(map[weak.Pointer[html.Node]]struct{}),
		last:     make(map[*dom.Window]*Context),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("handles")
	return c
}

// Context returns the execution context of doc, creating it on first use. A
// document that has been retired never gets a fresh context.
func (c *Cache) Context(doc *html.Node) (*Context, error) {
	if doc == nil {
		return nil, errcode.New(errcode.NoSuchWindow, MsgWindowClosed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contextLocked(doc)
}

func (c *Cache) contextLocked(doc *html.Node) (*Context, error) {
	if ctx, ok := c.contexts[doc]; ok {
		return ctx, nil
	}
	if _, dead := c.retired[weak.Make(doc)]; dead {
		return nil, errcode.New(errcode.StaleElementReference, MsgInactiveFrame)
	}
	ctx := newContext(doc, c.logger, c.metrics)
	c.contexts[doc] = ctx
	c.metrics.ContextOpened()
	c.logger.Debug("Opened execution context.", zap.String("context_id", ctx.ID()))
	return ctx, nil
}

// ContextFor returns the execution context of the document win currently
// shows. The first context after a navigation inherits the previous
// document's handles as stale names.
func (c *Cache) ContextFor(win *dom.Window) (*Context, error) {
	if win == nil {
		return nil, errcode.New(errcode.NoSuchWindow, MsgWindowClosed)
	}
	if win.Closed() {
		// A frame whose host was removed never fires unload itself.
		c.Retire(win.Document())
		return nil, errcode.New(errcode.NoSuchWindow, MsgWindowClosed)
	}
	doc := win.Document()

	c.mu.Lock()
	defer c.mu.Unlock()
	_, existed := c.contexts[doc]
	ctx, err := c.contextLocked(doc)
	if err != nil {
		return nil, err
	}
	if prev, ok := c.last[win]; ok && prev != ctx {
		if !existed && prev.Retired() {
			ctx.inherit(prev)
		}
	}
	c.last[win] = ctx
	return ctx, nil
}

// Retire ends the context of doc. Pending and future resolves through it fail
// as stale, and the cache will not create another context for doc. Windows
// call this from their unload hooks.
func (c *Cache) Retire(doc *html.Node) {
	if doc == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for wp := range c.retired {
		if wp.Value() == nil {
			delete(c.retired, wp)
		}
	}
	c.retired[weak.Make(doc)] = struct{}{}
	ctx, ok := c.contexts[doc]
	if !ok {
		return
	}
	delete(c.contexts, doc)
	ctx.markRetired()
	c.metrics.ContextRetired()
	c.logger.Debug("Retired execution context.", zap.String("context_id", ctx.ID()))
}

// Forget drops the bookkeeping for a window that has closed for good.
func (c *Cache) Forget(win *dom.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, win)
}

// Len is the number of live contexts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.contexts)
}
