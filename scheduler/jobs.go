package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"price_alert_backend/services/monitor"
	"price_alert_backend/services/realtime"
)

const (
	purgeAt       = "01:00"
	statsInterval = 30 * time.Second
	purgeTimeout  = 2 * time.Minute
)

// AlertPurger removes triggered alerts older than a cutoff
type AlertPurger interface {
	PurgeTriggeredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HubStats refreshes and returns the connection hub counters
type HubStats interface {
	PublishMetrics() realtime.Stats
}

// MonitorStatus exposes the monitoring loop state
type MonitorStatus interface {
	Status() monitor.Status
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron      *gocron.Scheduler
	purger    AlertPurger
	hub       HubStats
	monitor   MonitorStatus
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler creates a new scheduler instance. hub and monitor may be nil.
func NewScheduler(purger AlertPurger, hub HubStats, mon MonitorStatus, retention time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	return &Scheduler{
		cron:      cron,
		purger:    purger,
		hub:       hub,
		monitor:   mon,
		retention: retention,
		logger:    logger.Named("scheduler"),
		now:       time.Now,
	}
}

// Start registers all jobs and starts the cron loop
func (s *Scheduler) Start() error {
	s.logger.Info("starting_scheduler")

	// Purge old triggered alerts daily at 01:00 UTC
	if _, err := s.cron.Every(1).Day().At(purgeAt).Tag("purge").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		s.PurgeTriggeredAlerts(ctx)
	}); err != nil {
		return err
	}

	// Refresh hub gauges every 30 seconds
	if _, err := s.cron.Every(statsInterval).Tag("stats").Do(s.ReportConnectionStats); err != nil {
		return err
	}

	s.cron.StartAsync()
	s.logger.Info("scheduler_started", zap.Int("jobs", s.cron.Len()))
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler_stopped")
}

// PurgeTriggeredAlerts soft deletes triggered alerts older than the retention window
func (s *Scheduler) PurgeTriggeredAlerts(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	purged, err := s.purger.PurgeTriggeredBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("purge_triggered_alerts_failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, err
	}

	s.logger.Info("purged_triggered_alerts", zap.Int64("count", purged), zap.Time("cutoff", cutoff))
	return purged, nil
}

// ReportConnectionStats refreshes the hub gauges and logs a status line
func (s *Scheduler) ReportConnectionStats() {
	fields := make([]zap.Field, 0, 6)

	if s.hub != nil {
		stats := s.hub.PublishMetrics()
		fields = append(fields,
			zap.Int("active_users", stats.ActiveUsers),
			zap.Int("connections", stats.TotalConnections),
			zap.Int("watched_symbols", stats.WatchedSymbols),
		)
	}

	if s.monitor != nil {
		status := s.monitor.Status()
		fields = append(fields,
			zap.Bool("monitor_running", status.Running),
			zap.Int64("cycles", status.Cycles),
		)
		if status.LastError != "" {
			fields = append(fields, zap.String("last_error", status.LastError))
		}
	}

	s.logger.Info("connection_stats", fields...)
}
