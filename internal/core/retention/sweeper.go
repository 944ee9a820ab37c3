package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
)

// Config bounds how long closed data is kept.
type Config struct {
	SweepSchedule string
	ResolvedAge   time.Duration
	LogAge        time.Duration
}

// Sweeper prunes old resolved alerts and notification logs on a cron
// schedule. Escalation history survives with its alert; it is the
// audit trail and is only removed when the alert row goes.
type Sweeper struct {
	alerts repositories.AlertRepository
	logs   repositories.NotificationLogRepository
	cfg    Config
	logger *logrus.Logger
	cron   *cron.Cron
}

// NewSweeper creates the retention sweeper.
func NewSweeper(
	alerts repositories.AlertRepository,
	logs repositories.NotificationLogRepository,
	cfg Config,
	logger *logrus.Logger,
) *Sweeper {
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "0 3 * * *"
	}
	if cfg.ResolvedAge <= 0 {
		cfg.ResolvedAge = 30 * 24 * time.Hour
	}
	if cfg.LogAge <= 0 {
		cfg.LogAge = 90 * 24 * time.Hour
	}
	return &Sweeper{
		alerts: alerts,
		logs:   logs,
		cfg:    cfg,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start schedules the sweep.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.cfg.SweepSchedule).Info("Retention sweeper started")
	return nil
}

// Stop halts the schedule.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep prunes one round of expired rows.
func (s *Sweeper) Sweep() {
	ctx := context.Background()
	now := time.Now()

	alertsDeleted, err := s.alerts.DeleteResolvedBefore(ctx, now.Add(-s.cfg.ResolvedAge))
	if err != nil {
		s.logger.WithError(err).Error("Failed to prune resolved alerts")
	}
	logsDeleted, err := s.logs.DeleteBefore(ctx, now.Add(-s.cfg.LogAge))
	if err != nil {
		s.logger.WithError(err).Error("Failed to prune notification logs")
	}

	s.logger.WithFields(logrus.Fields{
		"alerts_deleted": alertsDeleted,
		"logs_deleted":   logsDeleted,
	}).Info("Retention sweep finished")
}
