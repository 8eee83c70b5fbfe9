// Package store persists Web Storage areas in Redis so localStorage survives
// across sessions and processes.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	backend "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "wdatoms:storage:"

// Store hands out Redis-backed storage areas. Each area is a hash of values
// plus a sorted set that remembers insertion order.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL expires an area this long after its last write. Zero keeps it forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.log = logger
		}
	}
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, address, password string, db int, opts ...Option) (*Store, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	s := NewFromClient(client, opts...)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", address, err)
	}
	return s, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("store")
	return s
}

// Area returns the storage area for kind and origin.
func (s *Store) Area(kind dom.StorageKind, origin string) *Area {
	base := s.prefix + string(kind) + ":" + url.QueryEscape(origin)
	return &Area{
		store:  s,
		values: base + ":values",
		order:  base + ":order",
	}
}

// Factory adapts the store to dom.WithStorage.
func (s *Store) Factory() dom.StorageFactory {
	return func(kind dom.StorageKind, origin string) dom.Storage {
		return s.Area(kind, origin)
	}
}

func (s *Store) seqKey() string {
	return s.prefix + "seq"
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Area is one origin's storage area. It implements dom.Storage.
type Area struct {
	store  *Store
	values string
	order  string
}

var _ dom.Storage = (*Area)(nil)

func (a *Area) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := a.store.client.HGet(ctx, a.values, key).Result()
	if errors.Is(err, backend.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %q from redis: %w", key, err)
	}
	return v, true, nil
}

func (a *Area) Set(ctx context.Context, key, value string) error {
	seq, err := a.store.client.Incr(ctx, a.store.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate insertion sequence: %w", err)
	}

	pipe := a.store.client.TxPipeline()
	pipe.HSet(ctx, a.values, key, value)
	// NX keeps the original position when a key is overwritten.
	pipe.ZAddNX(ctx, a.order, backend.Z{Score: float64(seq), Member: key})
	if a.store.ttl > 0 {
		pipe.Expire(ctx, a.values, a.store.ttl)
		pipe.Expire(ctx, a.order, a.store.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save %q to redis: %w", key, err)
	}
	return nil
}

func (a *Area) Remove(ctx context.Context, key string) (string, bool, error) {
	var get *backend.StringCmd
	_, err := a.store.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		get = pipe.HGet(ctx, a.values, key)
		pipe.HDel(ctx, a.values, key)
		pipe.ZRem(ctx, a.order, key)
		return nil
	})
	if err != nil && !errors.Is(err, backend.Nil) {
		return "", false, fmt.Errorf("failed to remove %q from redis: %w", key, err)
	}
	old, err := get.Result()
	if errors.Is(err, backend.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to remove %q from redis: %w", key, err)
	}
	return old, true, nil
}

func (a *Area) Keys(ctx context.Context) ([]string, error) {
	keys, err := a.store.client.ZRange(ctx, a.order, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

func (a *Area) Len(ctx context.Context) (int, error) {
	n, err := a.store.client.HLen(ctx, a.values).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return int(n), nil
}

func (a *Area) Clear(ctx context.Context) error {
	if err := a.store.client.Del(ctx, a.values, a.order).Err(); err != nil {
		return fmt.Errorf("failed to clear storage: %w", err)
	}
	a.store.log.Debug("Cleared storage area.", zap.String("key", a.values))
	return nil
}
