// internal/browser/dom/window.go
package dom

import (
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// BlankURL is the address of a window that has not loaded anything.
const BlankURL = "about:blank"

// Submission records a form submitted through the SUBMIT or CLICK atoms.
type Submission struct {
	Form   *html.Node
	Action string
	Method string
	Fields url.Values
}

// UnloadFunc is notified with the outgoing document whenever a window
// navigates away from it or closes.
type UnloadFunc func(doc *html.Node)

// Window is a browsing context: a top-level window or a frame. It owns the
// current document, its child frames, and per-origin storage.
type Window struct {
	id     string
	logger *zap.Logger

	mu       sync.RWMutex
	name     string
	url      string
	doc      *html.Node
	parent   *Window
	host     *html.Node // the <iframe>/<frame> element in the parent document
	frames   []*Window
	closed   bool
	active   *html.Node
	submits  []Submission
	unload   []UnloadFunc
	storages StorageFactory
	sessions map[string]Storage // sessionStorage by origin, top-level windows only
}

// WindowOption configures a new Window.
type WindowOption func(*Window)

// WithName sets window.name.
func WithName(name string) WindowOption {
	return func(w *Window) { w.name = name }
}

// WithLogger sets the logger used by the window and its frames.
func WithLogger(logger *zap.Logger) WindowOption {
	return func(w *Window) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithStorage sets the factory backing localStorage.
func WithStorage(factory StorageFactory) WindowOption {
	return func(w *Window) {
		if factory != nil {
			w.storages = factory
		}
	}
}

// NewWindow creates a top-level window showing an empty document.
func NewWindow(opts ...WindowOption) *Window {
	w := &Window{
		id:       uuid.New().String(),
		logger:   zap.NewNop(),
		url:      BlankURL,
		sessions: make(map[string]Storage),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.storages == nil {
		w.storages = NewMemoryStorageFactory()
	}
	w.logger = w.logger.Named("window").With(zap.String("window_id", w.id))
	w.doc = emptyDocument()
	return w
}

// newFrame creates the window hosted by an <iframe> or <frame> element.
func (w *Window) newFrame(host *html.Node) *Window {
	f := &Window{
		id:       uuid.New().String(),
		logger:   w.logger.Named("frame"),
		url:      BlankURL,
		parent:   w,
		host:     host,
		storages: w.storages,
	}
	w.mu.RLock()
	f.unload = append([]UnloadFunc(nil), w.unload...)
	w.mu.RUnlock()
	if name, ok := Attr(host, "name"); ok {
		f.name = name
	} else if id, ok := Attr(host, "id"); ok {
		f.name = id
	}
	f.logger = f.logger.With(zap.String("frame_id", f.id), zap.String("frame_name", f.name))

	if src, ok := Attr(host, "srcdoc"); ok {
		doc, err := html.Parse(strings.NewReader(src))
		if err != nil {
			f.logger.Warn("Failed to parse srcdoc, using an empty document.", zap.Error(err))
			doc = emptyDocument()
		}
		f.doc = doc
		f.url = "about:srcdoc"
	} else {
		f.doc = emptyDocument()
	}
	f.frames = f.buildFrames()
	return f
}

func emptyDocument() *html.Node {
	doc, err := html.Parse(strings.NewReader(""))
	if err != nil {
		// html.Parse only fails on reader errors.
		return &html.Node{Type: html.DocumentNode}
	}
	return doc
}

// ID returns the window's unique identifier.
func (w *Window) ID() string { return w.id }

// Name returns window.name.
func (w *Window) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// URL returns the address of the current document.
func (w *Window) URL() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.url
}

// Document returns the root node of the current document.
func (w *Window) Document() *html.Node {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.doc
}

// Parent returns the enclosing window, or nil for a top-level window.
func (w *Window) Parent() *Window { return w.parent }

// Top returns the top-level window of the frame tree.
func (w *Window) Top() *Window {
	t := w
	for t.parent != nil {
		t = t.parent
	}
	return t
}

// HostElement returns the frame element hosting this window, or nil.
func (w *Window) HostElement() *html.Node { return w.host }

// Origin derives the storage origin from the window's address. Frames showing
// srcdoc or about:blank inherit their parent's origin.
func (w *Window) Origin() string {
	u := w.URL()
	if (u == BlankURL || u == "about:srcdoc") && w.parent != nil {
		return w.parent.Origin()
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "null"
	}
	return parsed.Scheme + "://" + parsed.Host
}

// Load replaces the current document with one parsed from r. The outgoing
// document and all of its frames are unloaded.
func (w *Window) Load(r io.Reader, address string) error {
	doc, err := html.Parse(r)
	if err != nil {
		return err
	}
	if address == "" {
		address = BlankURL
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errWindowClosed
	}
	old := w.doc
	oldFrames := w.frames
	w.doc = doc
	w.url = address
	w.active = nil
	w.submits = nil
	w.mu.Unlock()

	for _, f := range oldFrames {
		f.Close()
	}
	w.fireUnload(old)

	frames := w.buildFrames()
	w.mu.Lock()
	w.frames = frames
	w.mu.Unlock()

	w.logger.Debug("Document loaded.", zap.String("url", address), zap.Int("frames", len(frames)))
	return nil
}

// LoadString is Load for an in-memory document.
func (w *Window) LoadString(markup, address string) error {
	return w.Load(strings.NewReader(markup), address)
}

func (w *Window) buildFrames() []*Window {
	doc := w.Document()
	var frames []*Window
	walkElements(doc, func(n *html.Node) bool {
		switch n.Data {
		case "iframe", "frame":
			frames = append(frames, w.newFrame(n))
			return false
		}
		return true
	})
	return frames
}

// Frames returns the child frames whose host element is still in the document,
// in document order. Frames whose host was removed are closed, which unloads
// their documents, and forgotten.
func (w *Window) Frames() []*Window {
	w.mu.RLock()
	frames := append([]*Window(nil), w.frames...)
	doc := w.doc
	w.mu.RUnlock()

	var live, detached []*Window
	for _, f := range frames {
		if !f.Closed() && IsAttached(f.host, doc) {
			live = append(live, f)
		} else {
			detached = append(detached, f)
		}
	}
	if len(detached) == 0 {
		return live
	}

	w.mu.Lock()
	if w.doc == doc {
		w.frames = append([]*Window(nil), live...)
	}
	w.mu.Unlock()
	for _, f := range detached {
		f.Close()
	}
	w.logger.Debug("Pruned detached frames.", zap.Int("count", len(detached)))
	return live
}

// FrameByIndex returns window.frames[index].
func (w *Window) FrameByIndex(index int) (*Window, bool) {
	frames := w.Frames()
	if index < 0 || index >= len(frames) {
		return nil, false
	}
	return frames[index], true
}

// FrameByNameOrID finds a child frame by its name, falling back to the id of
// the hosting element.
func (w *Window) FrameByNameOrID(key string) (*Window, bool) {
	frames := w.Frames()
	for _, f := range frames {
		if f.Name() == key {
			return f, true
		}
	}
	for _, f := range frames {
		if id, ok := Attr(f.host, "id"); ok && id == key {
			return f, true
		}
	}
	return nil, false
}

// FrameForElement returns the window hosted by a frame element.
func (w *Window) FrameForElement(el *html.Node) (*Window, bool) {
	for _, f := range w.Frames() {
		if f.host == el {
			return f, true
		}
	}
	return nil, false
}

// Close closes the window and its frames and unloads the current document.
// Closing twice is a no-op.
func (w *Window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	frames := w.frames
	doc := w.doc
	w.mu.Unlock()

	for _, f := range frames {
		f.Close()
	}
	w.fireUnload(doc)
	w.logger.Debug("Window closed.")
}

// Closed reports whether the window was closed. A frame whose host element
// has been removed from its parent's document counts as closed.
func (w *Window) Closed() bool {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return true
	}
	if w.parent == nil {
		return false
	}
	if w.parent.Closed() {
		return true
	}
	return !IsAttached(w.host, w.parent.Document())
}

// OnUnload registers a listener for documents leaving this window. Frames
// built after the call inherit the listener.
func (w *Window) OnUnload(fn UnloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unload = append(w.unload, fn)
}

func (w *Window) fireUnload(doc *html.Node) {
	if doc == nil {
		return
	}
	w.mu.RLock()
	listeners := append([]UnloadFunc(nil), w.unload...)
	w.mu.RUnlock()
	for _, fn := range listeners {
		fn(doc)
	}
}

// ActiveElement returns the focused element, defaulting to <body>.
func (w *Window) ActiveElement() *html.Node {
	w.mu.RLock()
	active, doc := w.active, w.doc
	w.mu.RUnlock()
	if active != nil && IsAttached(active, doc) {
		return active
	}
	if body := Body(doc); body != nil {
		return body
	}
	return documentElement(doc)
}

// Focus moves focus to el.
func (w *Window) Focus(el *html.Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = el
}

// RecordSubmission stores a form submission.
func (w *Window) RecordSubmission(s Submission) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.submits = append(w.submits, s)
	w.logger.Debug("Form submitted.", zap.String("action", s.Action), zap.String("method", s.Method))
}

// Submissions returns the forms submitted since the document loaded.
func (w *Window) Submissions() []Submission {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Submission(nil), w.submits...)
}

// LocalStorage returns the origin's persistent storage area.
func (w *Window) LocalStorage() Storage {
	return w.storages(LocalStorage, w.Origin())
}

// SessionStorage returns the origin's storage area for this top-level
// browsing context.
func (w *Window) SessionStorage() Storage {
	top := w.Top()
	origin := w.Origin()

	top.mu.Lock()
	defer top.mu.Unlock()
	s, ok := top.sessions[origin]
	if !ok {
		s = NewMemoryStorage()
		top.sessions[origin] = s
	}
	return s
}
