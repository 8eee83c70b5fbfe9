// internal/browser/session/session.go
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/browser/atoms"
	"github.com/xkilldash9x/wdatoms/internal/browser/dispatch"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/browser/handles"
	"github.com/xkilldash9x/wdatoms/internal/browser/jsexec"
	"github.com/xkilldash9x/wdatoms/internal/browser/webdb"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
	"github.com/xkilldash9x/wdatoms/internal/observability"
)

// maxDocumentSize caps documents fetched by Navigate.
const maxDocumentSize = 16 << 20

// Session is one automation session: a top-level window, the window commands
// currently target, and the handle cache and dispatcher serving them.
type Session struct {
	id     string
	logger *zap.Logger

	top        *dom.Window
	cache      *handles.Cache
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	scripts    *jsexec.Runtime
	sql        *webdb.Registry
	client     *http.Client

	mu      sync.RWMutex
	current *dom.Window

	// serial orders requests arriving through Handle.
	serial sync.Mutex

	closeOnce sync.Once
}

type options struct {
	logger        *zap.Logger
	metrics       *observability.Metrics
	storage       dom.StorageFactory
	scriptTimeout time.Duration
	databaseDir   string
	client        *http.Client
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records dispatch and cache metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStorage backs localStorage with factory instead of memory.
func WithStorage(factory dom.StorageFactory) Option {
	return func(o *options) { o.storage = factory }
}

// WithScriptTimeout bounds EXECUTE_SCRIPT when the caller sets no deadline.
func WithScriptTimeout(d time.Duration) Option {
	return func(o *options) { o.scriptTimeout = d }
}

// WithDatabaseDir keeps Web SQL databases as files under dir.
func WithDatabaseDir(dir string) Option {
	return func(o *options) { o.databaseDir = dir }
}

// WithHTTPClient sets the client Navigate fetches documents with.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// New creates a session showing about:blank with every atom registered.
func New(opts ...Option) (*Session, error) {
	o := options{
		logger:        zap.NewNop(),
		scriptTimeout: jsexec.DefaultTimeout,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	id := uuid.New().String()
	log := o.logger.Named("session").With(zap.String("session_id", id))

	s := &Session{
		id:     id,
		logger: log,
		client: o.client,
		cache:  handles.NewCache(handles.WithLogger(log), handles.WithMetrics(o.metrics)),
		scripts: jsexec.NewRuntime(
			jsexec.WithLogger(log),
			jsexec.WithTimeout(o.scriptTimeout),
		),
	}

	dbOpts := []webdb.Option{webdb.WithLogger(log)}
	if o.databaseDir != "" {
		dbOpts = append(dbOpts, webdb.WithDirectory(o.databaseDir))
	}
	s.sql = webdb.New(dbOpts...)

	s.registry = dispatch.NewRegistry()
	if err := atoms.Register(s.registry, atoms.Deps{Scripts: s.scripts, SQL: s.sql, Logger: log}); err != nil {
		return nil, fmt.Errorf("failed to register atoms: %w", err)
	}
	s.dispatcher = dispatch.New(s.registry, s.cache,
		dispatch.WithLogger(log),
		dispatch.WithMetrics(o.metrics),
	)

	winOpts := []dom.WindowOption{dom.WithLogger(log)}
	if o.storage != nil {
		winOpts = append(winOpts, dom.WithStorage(o.storage))
	}
	s.top = dom.NewWindow(winOpts...)
	// Every document a window leaves behind retires its execution context.
	s.top.OnUnload(s.cache.Retire)
	s.current = s.top

	log.Debug("Session created.", zap.Int("commands", len(s.registry.Names())))
	return s, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Top returns the top-level window.
func (s *Session) Top() *dom.Window { return s.top }

// Current returns the window commands run against.
func (s *Session) Current() *dom.Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Commands lists every registered command name.
func (s *Session) Commands() []string { return s.registry.Names() }

// Load replaces the top-level document and moves focus back to it.
func (s *Session) Load(r io.Reader, address string) error {
	if err := s.top.Load(r, address); err != nil {
		return fmt.Errorf("failed to load %s: %w", address, err)
	}
	s.SwitchToDefaultContent()
	s.logger.Info("Document loaded.", zap.String("url", address))
	return nil
}

// LoadString is Load for an in-memory document.
func (s *Session) LoadString(markup, address string) error {
	return s.Load(strings.NewReader(markup), address)
}

// Navigate fetches address over HTTP and loads the response body.
func (s *Session) Navigate(ctx context.Context, address string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", address, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", address, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("failed to fetch %s: status %d", address, resp.StatusCode)
	}
	return s.Load(io.LimitReader(resp.Body, maxDocumentSize), resp.Request.URL.String())
}

// Execute runs a command against the current window.
func (s *Session) Execute(ctx context.Context, command string, args []schemas.Value) schemas.Envelope {
	return s.dispatcher.Dispatch(ctx, s.Current(), command, args)
}

// ExecuteJSON runs a command whose arguments are a JSON array and returns
// the envelope text.
func (s *Session) ExecuteJSON(ctx context.Context, command, argsJSON string) string {
	return s.dispatcher.DispatchJSON(ctx, s.Current(), command, argsJSON)
}

// SwitchToFrame moves focus to a frame of the current window. ref is a
// window reference returned by a frame atom, a frame index, or a frame name
// or id.
func (s *Session) SwitchToFrame(ref schemas.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		target *dom.Window
		found  bool
	)
	switch ref.Kind() {
	case schemas.KindWindow:
		exec, err := s.cache.ContextFor(s.current)
		if err != nil {
			return err
		}
		w, err := exec.ResolveWindow(ref.Handle())
		if err != nil {
			return err
		}
		target, found = w, true
	case schemas.KindNumber:
		if index, ok := dispatch.Integer(ref.AsNumber()); ok {
			target, found = s.current.FrameByIndex(index)
		}
	case schemas.KindString:
		target, found = s.current.FrameByNameOrID(ref.AsString())
	default:
		return errcode.New(errcode.NoSuchFrame, "Unable to locate frame: %s", ref.GoString())
	}
	if !found {
		return errcode.New(errcode.NoSuchFrame, "Unable to locate frame: %s", ref.GoString())
	}
	if target.Closed() {
		return errcode.New(errcode.NoSuchWindow, handles.MsgWindowClosed)
	}
	s.current = target
	s.logger.Debug("Switched frame.", zap.String("frame", target.Name()))
	return nil
}

// SwitchToDefaultContent moves focus back to the top-level window.
func (s *Session) SwitchToDefaultContent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.top
}

// Close closes every window and database. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.top.Close()
		s.cache.Forget(s.top)
		err = s.sql.Close()
		s.logger.Info("Session closed.")
	})
	return err
}
