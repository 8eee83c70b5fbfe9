// File: internal/service/manager.go
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/wdatoms/internal/browser/session"
)

// Manager owns the live sessions of a long-running process. Every session it
// creates shares the same options, so they share storage and metrics.
type Manager struct {
	logger *zap.Logger
	opts   []session.Option

	mu       sync.RWMutex
	sessions map[string]*session.Session
	closed   bool

	commandsOnce sync.Once
	commands     []string
}

// NewManager creates an empty manager. opts are applied to every session.
func NewManager(logger *zap.Logger, opts ...session.Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:   logger.Named("sessions"),
		opts:     opts,
		sessions: make(map[string]*session.Session),
	}
}

// Create starts a new session and tracks it.
func (m *Manager) Create() (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("session manager is shut down")
	}
	s, err := session.New(m.opts...)
	if err != nil {
		return nil, err
	}
	m.sessions[s.ID()] = s
	m.logger.Debug("Session started.", zap.String("session_id", s.ID()), zap.Int("active", len(m.sessions)))
	return s, nil
}

// Get looks up a live session.
func (m *Manager) Get(id string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close ends one session. It reports false when id is unknown.
func (m *Manager) Close(id string) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, s.Close()
}

// IDs lists live session ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Commands lists every command a session answers, atoms and session-level
// commands alike.
func (m *Manager) Commands() ([]string, error) {
	var err error
	m.commandsOnce.Do(func() {
		var sample *session.Session
		sample, err = session.New(m.opts...)
		if err != nil {
			return
		}
		defer sample.Close()
		names := append(sample.Commands(), session.SessionCommands...)
		sort.Strings(names)
		m.commands = names
	})
	if err != nil {
		return nil, err
	}
	return m.commands, nil
}

// Shutdown closes every session concurrently and refuses new ones.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	live := m.sessions
	m.sessions = make(map[string]*session.Session)
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for id, s := range live {
		g.Go(func() error {
			if err := s.Close(); err != nil {
				return fmt.Errorf("failed to close session %s: %w", id, err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		m.logger.Debug("All sessions closed.", zap.Int("count", len(live)))
		return err
	case <-ctx.Done():
		return fmt.Errorf("timed out closing sessions: %w", ctx.Err())
	}
}
