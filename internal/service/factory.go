// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/internal/browser/session"
	"github.com/xkilldash9x/wdatoms/internal/config"
	"github.com/xkilldash9x/wdatoms/internal/observability"
	"github.com/xkilldash9x/wdatoms/internal/store"
)

// ComponentFactory creates the set of components a command runs with.
// Commands take the interface so tests can substitute their own.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires metrics, storage and the session manager from cfg.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	c := &Components{Metrics: metrics, Gatherer: reg, logger: logger}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(metrics),
		session.WithScriptTimeout(cfg.Script().Timeout),
	}
	if dir := cfg.WebDB().Dir; dir != "" {
		opts = append(opts, session.WithDatabaseDir(dir))
	}

	if cfg.Storage().Backend == config.StorageRedis {
		rc := cfg.Storage().Redis
		st, err := store.New(ctx, rc.Addr, rc.Password, rc.DB,
			store.WithPrefix(rc.Prefix),
			store.WithTTL(rc.TTL),
			store.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		c.Store = st
		opts = append(opts, session.WithStorage(st.Factory()))
		logger.Info("localStorage backed by redis.", zap.String("addr", rc.Addr), zap.Int("db", rc.DB))
	}

	c.Sessions = NewManager(logger, opts...)
	return c, nil
}
