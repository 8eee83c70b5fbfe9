// File: internal/service/components.go
package service

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/internal/observability"
	"github.com/xkilldash9x/wdatoms/internal/store"
)

// Components holds everything a command needs to serve sessions. It
// centralizes lifecycle management so the cmd layer only calls Shutdown.
type Components struct {
	// Store is nil when localStorage lives in memory.
	Store    *store.Store
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Sessions *Manager

	logger *zap.Logger
}

// Shutdown closes the sessions first, then the storage connection.
func (c *Components) Shutdown(ctx context.Context) error {
	logger := c.logger
	if logger == nil {
		logger = observability.GetLogger()
	}
	logger.Debug("Beginning components shutdown sequence.")

	var firstErr error
	if c.Sessions != nil {
		if err := c.Sessions.Shutdown(ctx); err != nil {
			logger.Warn("Error during session shutdown.", zap.Error(err))
			firstErr = err
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Error closing storage connection.", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		} else {
			logger.Debug("Storage connection closed.")
		}
	}
	logger.Info("All components shut down.")
	return firstErr
}
