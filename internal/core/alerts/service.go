package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
)

// CreatedHook runs after a new alert is opened. Escalation timer
// registration, the initial notification cycle and diagnosis hand-off
// hang off this.
type CreatedHook func(ctx context.Context, alert *models.Alert, rule *models.AlertRule)

// ClosedHook runs after an alert is acknowledged or resolved, so
// pending escalation timers can be disarmed.
type ClosedHook func(ctx context.Context, alert *models.Alert)

// Service is the single authority for alert identity. All violation
// events funnel through it; no other component may create or
// fingerprint-match alerts.
type Service struct {
	alerts repositories.AlertRepository
	locks  *KeyLock
	logger *logrus.Logger

	clearWindows int

	mu           sync.Mutex
	clearStreaks map[string]int

	onCreated []CreatedHook
	onClosed  []ClosedHook
}

// NewService creates the alert deduplication service. clearWindows is
// how many consecutive violation-free evaluation windows resolve a
// firing alert.
func NewService(alerts repositories.AlertRepository, locks *KeyLock, clearWindows int, logger *logrus.Logger) *Service {
	if clearWindows <= 0 {
		clearWindows = 3
	}
	return &Service{
		alerts:       alerts,
		locks:        locks,
		logger:       logger,
		clearWindows: clearWindows,
		clearStreaks: make(map[string]int),
	}
}

// OnCreated registers a hook for newly opened alerts.
func (s *Service) OnCreated(hook CreatedHook) {
	s.onCreated = append(s.onCreated, hook)
}

// OnClosed registers a hook for acknowledged or resolved alerts.
func (s *Service) OnClosed(hook ClosedHook) {
	s.onClosed = append(s.onClosed, hook)
}

// HandleViolation folds a rule violation into the open alert for its
// fingerprint, or opens a new alert when none exists.
func (s *Service) HandleViolation(ctx context.Context, rule *models.AlertRule, observed float64, at time.Time) error {
	fingerprint := Fingerprint(rule)

	s.locks.Lock(fingerprint)
	defer s.locks.Unlock(fingerprint)

	s.resetClearStreak(fingerprint)

	existing, err := s.alerts.GetOpenByFingerprint(ctx, fingerprint)
	if err != nil {
		return err
	}

	if existing != nil {
		if err := s.alerts.RecordOccurrence(ctx, existing.ID, observed, at); err != nil {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"alert_id":    existing.ID,
			"fingerprint": fingerprint,
			"occurrences": existing.OccurrenceCount + 1,
		}).Debug("Repeated violation folded into open alert")
		return nil
	}

	alert := &models.Alert{
		ID:              uuid.New().String(),
		RuleID:          rule.ID,
		Fingerprint:     fingerprint,
		Target:          rule.Target,
		Status:          models.AlertFiring,
		Severity:        rule.Severity,
		Title:           rule.Name,
		Message:         violationMessage(rule, observed),
		ObservedValue:   observed,
		FirstFiredAt:    at,
		LastFiredAt:     at,
		OccurrenceCount: 1,
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id":    alert.ID,
		"rule_id":     rule.ID,
		"fingerprint": fingerprint,
		"severity":    alert.Severity,
	}).Info("Alert opened")

	for _, hook := range s.onCreated {
		hook(ctx, alert, rule)
	}
	return nil
}

// HandleClear records a violation-free evaluation window for a rule.
// After enough consecutive clear windows the open alert auto-resolves.
func (s *Service) HandleClear(ctx context.Context, rule *models.AlertRule) error {
	fingerprint := Fingerprint(rule)

	s.locks.Lock(fingerprint)
	defer s.locks.Unlock(fingerprint)

	existing, err := s.alerts.GetOpenByFingerprint(ctx, fingerprint)
	if err != nil {
		return err
	}
	if existing == nil {
		s.resetClearStreak(fingerprint)
		return nil
	}

	streak := s.bumpClearStreak(fingerprint)
	if streak < s.clearWindows {
		return nil
	}
	s.resetClearStreak(fingerprint)

	now := time.Now()
	if err := s.alerts.Resolve(ctx, existing.ID, now); err != nil {
		return err
	}
	existing.Status = models.AlertResolved
	existing.ResolvedAt = &now

	s.logger.WithFields(logrus.Fields{
		"alert_id":      existing.ID,
		"fingerprint":   fingerprint,
		"clear_windows": streak,
	}).Info("Alert auto-resolved after clear streak")

	for _, hook := range s.onClosed {
		hook(ctx, existing)
	}
	return nil
}

// Acknowledge marks an alert as acknowledged, which halts escalation.
func (s *Service) Acknowledge(ctx context.Context, alertID, user string) (*models.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(alert.Fingerprint)
	defer s.locks.Unlock(alert.Fingerprint)

	if err := s.alerts.Acknowledge(ctx, alertID, user); err != nil {
		return nil, err
	}

	alert, err = s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id": alertID,
		"user":     user,
	}).Info("Alert acknowledged")

	for _, hook := range s.onClosed {
		hook(ctx, alert)
	}
	return alert, nil
}

// Resolve closes an alert by operator action. Resolving an already
// resolved alert is a no-op.
func (s *Service) Resolve(ctx context.Context, alertID string) (*models.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(alert.Fingerprint)
	defer s.locks.Unlock(alert.Fingerprint)

	if alert.Status == models.AlertResolved {
		return alert, nil
	}

	now := time.Now()
	if err := s.alerts.Resolve(ctx, alertID, now); err != nil {
		return nil, err
	}
	s.resetClearStreak(alert.Fingerprint)

	alert.Status = models.AlertResolved
	alert.ResolvedAt = &now

	s.logger.WithField("alert_id", alertID).Info("Alert resolved")

	for _, hook := range s.onClosed {
		hook(ctx, alert)
	}
	return alert, nil
}

func (s *Service) resetClearStreak(fingerprint string) {
	s.mu.Lock()
	delete(s.clearStreaks, fingerprint)
	s.mu.Unlock()
}

func (s *Service) bumpClearStreak(fingerprint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStreaks[fingerprint]++
	return s.clearStreaks[fingerprint]
}

func violationMessage(rule *models.AlertRule, observed float64) string {
	return fmt.Sprintf("%s on %s: observed %g %s %g",
		rule.Name, rule.Target, observed, rule.Operator, rule.Threshold)
}
