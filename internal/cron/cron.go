// Package cron schedules the periodic cache warm-up of the aggregate views.
package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/song-catalog/server/internal/service"
	"github.com/song-catalog/server/pkg/logger"
)

// Manager runs the scheduled warm-up job. After a mutation or TTL expiry the
// first reader of an aggregate view pays the store roundtrip; warming the
// default views keeps that off the request path most of the time.
type Manager struct {
	cron     *cron.Cron
	catalog  *service.CatalogService
	schedule string
	limit    int
	logger   logger.Logger
}

// NewManager creates the cron manager. An empty schedule disables warm-up.
func NewManager(catalog *service.CatalogService, schedule string, limit int, log logger.Logger) *Manager {
	return &Manager{
		cron:     cron.New(cron.WithLocation(time.Local)),
		catalog:  catalog,
		schedule: schedule,
		limit:    limit,
		logger:   log,
	}
}

// Start registers the warm-up job and starts the scheduler.
func (m *Manager) Start() error {
	if m.schedule == "" {
		m.logger.Info("Cache warm-up disabled")
		return nil
	}

	_, err := m.cron.AddFunc(m.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		start := time.Now()
		if err := m.catalog.WarmUp(ctx, m.limit); err != nil {
			m.logger.Warn("Cache warm-up failed", logger.Error(err))
			return
		}
		m.logger.Info("Cache warm-up completed", logger.Duration("took", time.Since(start)))
	})
	if err != nil {
		return err
	}

	m.cron.Start()
	m.logger.Info("Cron manager started",
		logger.String("schedule", m.schedule),
		logger.Int("warmup_limit", m.limit),
	)
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("Cron manager stopped")
}
