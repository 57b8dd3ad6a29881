package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// Resyncer is the part of the sync orchestrator the reconciler drives.
type Resyncer interface {
	ResyncIfDirty(ctx context.Context) bool
	Dirty() bool
}

// ReconcilerConfig controls how often a dirty list is retried.
type ReconcilerConfig struct {
	// Interval between attempts; zero disables the reconciler.
	Interval time.Duration
	Timeout  time.Duration
}

// Reconciler periodically uploads a dirty list while the remote is reachable,
// so a failed resync does not wait for the next user action.
type Reconciler struct {
	sync    Resyncer
	monitor ConnectionHealth
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     ReconcilerConfig
}

func NewReconciler(sync Resyncer, monitor ConnectionHealth, logger *zap.Logger, cfg ReconcilerConfig) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}

	r := &Reconciler{
		sync:    sync,
		monitor: monitor,
		logger:  logger,
		cfg:     cfg,
	}
	if cfg.Interval <= 0 {
		return r
	}

	r.cron = cron.New(cron.WithSeconds())
	if _, err := r.cron.AddFunc("@every "+cfg.Interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		r.Tick(ctx)
	}); err != nil {
		logger.Warn("reconciler disabled", zap.Duration("interval", cfg.Interval), zap.Error(err))
		r.cron = nil
	}
	return r
}

// Enabled reports whether Start schedules anything.
func (r *Reconciler) Enabled() bool {
	return r != nil && r.cron != nil
}

// Start launches the cron scheduler.
func (r *Reconciler) Start() {
	if !r.Enabled() {
		return
	}
	r.cron.Start()
	r.logger.Debug("reconciler started", zap.Duration("interval", r.cfg.Interval))
}

// Stop waits for a running tick or ctx, whichever ends first.
func (r *Reconciler) Stop(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	r.logger.Debug("reconciler stopped")
}

// Tick starts a resync when the list is dirty and the remote is online.
// It reports whether one was started.
func (r *Reconciler) Tick(ctx context.Context) bool {
	if !r.sync.Dirty() {
		return false
	}
	if r.monitor != nil && !r.monitor.IsOnline() {
		r.logger.Debug("skipping reconcile (offline)")
		return false
	}
	started := r.sync.ResyncIfDirty(ctx)
	if started {
		r.logger.Info("reconciling dirty list")
	}
	return started
}
