package escalation

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/core/alerts"
	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

// Notifier is called after each escalation so a new notification cycle
// can run. severityIncreased distinguishes escalations that bypass
// channel cooldowns.
type Notifier func(ctx context.Context, alert *models.Alert, severityIncreased bool)

// Engine advances alert severity over time according to each rule's
// escalation ladder. Timers live in one min-heap serviced by a single
// sweeper goroutine; there is never a goroutine per alert.
type Engine struct {
	alertRepo   repositories.AlertRepository
	escRepo     repositories.EscalationRuleRepository
	historyRepo repositories.EscalationHistoryRepository
	locks       *alerts.KeyLock
	logger      *logrus.Logger

	sweepInterval time.Duration
	notifier      Notifier

	mu          sync.Mutex
	timers      timerHeap
	generations map[string]uint64
	wake        chan struct{}

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewEngine creates the escalation engine.
func NewEngine(
	alertRepo repositories.AlertRepository,
	escRepo repositories.EscalationRuleRepository,
	historyRepo repositories.EscalationHistoryRepository,
	locks *alerts.KeyLock,
	sweepInterval time.Duration,
	logger *logrus.Logger,
) *Engine {
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	return &Engine{
		alertRepo:     alertRepo,
		escRepo:       escRepo,
		historyRepo:   historyRepo,
		locks:         locks,
		logger:        logger,
		sweepInterval: sweepInterval,
		generations:   make(map[string]uint64),
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// SetNotifier wires the notification callback. Must be called before
// Start.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Start launches the sweeper goroutine.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("escalation engine is already running")
	}
	e.running = true
	go e.sweep()
	e.logger.Info("Escalation engine started")
	return nil
}

// Stop shuts down the sweeper and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stop)
	<-e.done
	e.logger.Info("Escalation engine stopped")
}

// Register arms the first escalation timer for a newly opened alert.
// Alerts whose rule has no escalation ladder get no timers.
func (e *Engine) Register(ctx context.Context, alert *models.Alert) error {
	ladder, err := e.escRepo.GetByAlertRuleID(ctx, alert.RuleID)
	if err != nil {
		return err
	}
	if ladder == nil || len(ladder.Levels) == 0 {
		return nil
	}

	level := ladder.Levels[0]
	e.arm(alert, alert.FirstFiredAt.Add(level.Delay()), 0)

	e.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"level":    level.Level,
		"due_in":   time.Until(alert.FirstFiredAt.Add(level.Delay())).String(),
	}).Debug("Escalation timer armed")
	return nil
}

// Disarm cancels all pending timers for an alert. Disarming an alert
// with no timers is a no-op.
func (e *Engine) Disarm(alertID string) {
	e.mu.Lock()
	e.generations[alertID]++
	e.mu.Unlock()
}

// EscalateManual applies the next unconsumed level immediately,
// attributed to the acting user. The following level's timer is armed
// as usual.
func (e *Engine) EscalateManual(ctx context.Context, alertID, user string) (*models.Alert, error) {
	alert, err := e.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	e.locks.Lock(alert.Fingerprint)
	defer e.locks.Unlock(alert.Fingerprint)

	alert, err = e.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status != models.AlertFiring {
		return nil, apperrors.WithDetails(apperrors.ErrConflict,
			fmt.Sprintf("alert %s is %s, only firing alerts escalate", alertID, alert.Status))
	}

	ladder, err := e.escRepo.GetByAlertRuleID(ctx, alert.RuleID)
	if err != nil {
		return nil, err
	}
	if ladder == nil || len(ladder.Levels) == 0 {
		return nil, apperrors.WithDetails(apperrors.ErrBadRequest,
			fmt.Sprintf("rule %d has no escalation levels", alert.RuleID))
	}

	idx, err := e.nextUnconsumed(ctx, alert, ladder)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, apperrors.WithDetails(apperrors.ErrConflict, "all escalation levels consumed")
	}

	if err := e.apply(ctx, alert, ladder, idx, false, user); err != nil {
		return nil, err
	}
	return e.alertRepo.GetByID(ctx, alertID)
}

// arm pushes a timer under the alert's current generation.
func (e *Engine) arm(alert *models.Alert, due time.Time, levelIdx int) {
	e.mu.Lock()
	heap.Push(&e.timers, &timerItem{
		due:         due,
		alertID:     alert.ID,
		fingerprint: alert.Fingerprint,
		levelIdx:    levelIdx,
		gen:         e.generations[alert.ID],
	})
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) sweep() {
	defer close(e.done)

	for {
		timer := time.NewTimer(e.nextWait())
		select {
		case <-e.stop:
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
		case <-timer.C:
		}
		e.fireDue()
	}
}

// nextWait returns how long to sleep: until the earliest timer, capped
// by the sweep interval so new registrations are never missed for long.
func (e *Engine) nextWait() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	wait := e.sweepInterval
	if len(e.timers) > 0 {
		if until := time.Until(e.timers[0].due); until < wait {
			wait = until
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (e *Engine) fireDue() {
	now := time.Now()
	for {
		e.mu.Lock()
		if len(e.timers) == 0 || e.timers[0].due.After(now) {
			e.mu.Unlock()
			return
		}
		item := heap.Pop(&e.timers).(*timerItem)
		stale := item.gen != e.generations[item.alertID]
		e.mu.Unlock()

		if stale {
			continue
		}
		e.fire(item)
	}
}

// fire handles one due timer under the alert's fingerprint lock.
func (e *Engine) fire(item *timerItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	e.locks.Lock(item.fingerprint)
	defer e.locks.Unlock(item.fingerprint)

	alert, err := e.alertRepo.GetByID(ctx, item.alertID)
	if err != nil {
		e.logger.WithError(err).WithField("alert_id", item.alertID).Warn("Escalation timer fired for missing alert")
		return
	}
	if alert.Status != models.AlertFiring {
		// Acknowledged or resolved since the timer was armed.
		return
	}

	ladder, err := e.escRepo.GetByAlertRuleID(ctx, alert.RuleID)
	if err != nil || ladder == nil || item.levelIdx >= len(ladder.Levels) {
		if err != nil {
			e.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to load escalation ladder")
		}
		return
	}

	// Manual escalation may have consumed this level already; skip to
	// the next unconsumed one in that case.
	idx, err := e.nextUnconsumed(ctx, alert, ladder)
	if err != nil {
		e.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to determine next escalation level")
		return
	}
	if idx < 0 {
		return
	}
	if idx != item.levelIdx {
		due := alert.FirstFiredAt.Add(ladder.Levels[idx].Delay())
		e.arm(alert, due, idx)
		return
	}

	if err := e.apply(ctx, alert, ladder, idx, true, ""); err != nil {
		e.logger.WithError(err).WithField("alert_id", alert.ID).Error("Escalation failed")
	}
}

// apply performs one escalation step: severity update, history append,
// notification cycle, next timer. Caller holds the fingerprint lock.
func (e *Engine) apply(ctx context.Context, alert *models.Alert, ladder *models.EscalationRule, idx int, bySystem bool, user string) error {
	level := ladder.Levels[idx]
	from := alert.Severity

	if err := e.alertRepo.UpdateSeverity(ctx, alert.ID, level.TargetSeverity); err != nil {
		return err
	}

	entry := &models.EscalationHistory{
		AlertID:           alert.ID,
		FromSeverity:      from,
		ToSeverity:        level.TargetSeverity,
		Level:             level.Level,
		EscalatedBySystem: bySystem,
		EscalatedBy:       user,
	}
	if err := e.historyRepo.Append(ctx, entry); err != nil {
		return err
	}

	alert.Severity = level.TargetSeverity

	e.logger.WithFields(logrus.Fields{
		"alert_id":  alert.ID,
		"level":     level.Level,
		"from":      from,
		"to":        level.TargetSeverity,
		"by_system": bySystem,
	}).Info("Alert escalated")

	if e.notifier != nil {
		e.notifier(ctx, alert, level.TargetSeverity.Above(from))
	}

	if idx+1 < len(ladder.Levels) {
		next := ladder.Levels[idx+1]
		e.arm(alert, alert.FirstFiredAt.Add(next.Delay()), idx+1)
	}
	return nil
}

// nextUnconsumed returns the index of the first ladder level above the
// highest level already recorded in history, or -1 when exhausted.
func (e *Engine) nextUnconsumed(ctx context.Context, alert *models.Alert, ladder *models.EscalationRule) (int, error) {
	history, err := e.historyRepo.ListByAlert(ctx, alert.ID)
	if err != nil {
		return 0, err
	}

	last := 0
	for _, h := range history {
		if h.Level > last {
			last = h.Level
		}
	}
	for i, level := range ladder.Levels {
		if level.Level > last {
			return i, nil
		}
	}
	return -1, nil
}

// ValidateLevels enforces the ladder invariant: levels strictly
// increasing in both level and delay, with known severities.
func ValidateLevels(levels []models.EscalationLevel) error {
	if len(levels) == 0 {
		return fmt.Errorf("escalation rule needs at least one level")
	}
	for i, l := range levels {
		if !l.TargetSeverity.Valid() {
			return fmt.Errorf("level %d has unknown severity %q", l.Level, l.TargetSeverity)
		}
		if l.DelayMinutes <= 0 {
			return fmt.Errorf("level %d has non-positive delay", l.Level)
		}
		if i > 0 {
			prev := levels[i-1]
			if l.Level <= prev.Level {
				return fmt.Errorf("levels must strictly increase: %d after %d", l.Level, prev.Level)
			}
			if l.DelayMinutes <= prev.DelayMinutes {
				return fmt.Errorf("delays must strictly increase: %dm after %dm", l.DelayMinutes, prev.DelayMinutes)
			}
		}
	}
	return nil
}
