// Package scheduler periodically recomputes the book so gauges and
// WebSocket clients see current PnL without a request.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/atmx/pnl-engine/internal/portfolio"
)

// Refresher recomputes a full snapshot.
type Refresher interface {
	RefreshMetrics(ctx context.Context) (portfolio.Snapshot, error)
}

// Scheduler runs a Refresher on a cron spec.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	spec      string
	timeout   time.Duration
}

// New creates a scheduler. spec accepts standard cron expressions and
// descriptors such as "@every 1m".
func New(refresher Refresher, spec string) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		refresher: refresher,
		spec:      spec,
		timeout:   30 * time.Second,
	}
}

// Start registers the refresh job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		return fmt.Errorf("schedule refresh %q: %w", s.spec, err)
	}
	s.cron.Start()
	slog.Info("scheduler started", "spec", s.spec)
	return nil
}

// RunOnce performs one refresh with a bounded timeout.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	snap, err := s.refresher.RefreshMetrics(ctx)
	if err != nil {
		slog.Error("scheduled refresh failed", "err", err)
		return
	}
	slog.Debug("scheduled refresh",
		"positions", snap.Portfolio.Count,
		"net_value", snap.Reconciliation.NetValue.String(),
		"took", time.Since(start),
	)
}

// Stop stops the cron loop and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}
