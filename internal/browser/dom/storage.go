// internal/browser/dom/storage.go
package dom

import (
	"context"
	"sync"
)

// StorageKind distinguishes the two Web Storage areas.
type StorageKind string

const (
	LocalStorage   StorageKind = "local"
	SessionStorage StorageKind = "session"
)

// Storage is a Web Storage area. Implementations may be remote, so every
// method takes a context and can fail.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key and returns the value it held.
	Remove(ctx context.Context, key string) (string, bool, error)
	Keys(ctx context.Context) ([]string, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// StorageFactory returns the storage area for an origin.
type StorageFactory func(kind StorageKind, origin string) Storage

// MemoryStorage is an insertion-ordered, in-process storage area.
type MemoryStorage struct {
	mu     sync.Mutex
	keys   []string
	values map[string]string
}

// NewMemoryStorage creates an empty area.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
	return nil
}

func (s *MemoryStorage) Remove(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return v, true, nil
}

func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.keys...), nil
}

func (s *MemoryStorage) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys), nil
}

func (s *MemoryStorage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = nil
	s.values = make(map[string]string)
	return nil
}

// NewMemoryStorageFactory returns a factory that hands out one shared
// in-memory area per (kind, origin).
func NewMemoryStorageFactory() StorageFactory {
	var mu sync.Mutex
	areas := make(map[string]*MemoryStorage)
	return func(kind StorageKind, origin string) Storage {
		mu.Lock()
		defer mu.Unlock()
		key := string(kind) + "|" + origin
		s, ok := areas[key]
		if !ok {
			s = NewMemoryStorage()
			areas[key] = s
		}
		return s
	}
}
