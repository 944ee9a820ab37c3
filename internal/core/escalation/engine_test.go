package escalation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/opswatch-backend-go/internal/core/alerts"
	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

type fakeAlertStore struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert
}

func (s *fakeAlertStore) Create(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *fakeAlertStore) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, apperrors.WithDetails(apperrors.ErrNotFound, "alert not found")
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAlertStore) GetOpenByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error) {
	return nil, nil
}

func (s *fakeAlertStore) List(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
	return nil, nil
}

func (s *fakeAlertStore) RecordOccurrence(ctx context.Context, id string, observed float64, at time.Time) error {
	return nil
}

func (s *fakeAlertStore) UpdateSeverity(ctx context.Context, id string, severity models.Severity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return apperrors.WithDetails(apperrors.ErrNotFound, "alert not found")
	}
	a.Severity = severity
	return nil
}

func (s *fakeAlertStore) Acknowledge(ctx context.Context, id, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[id].Status = models.AlertAcknowledged
	return nil
}

func (s *fakeAlertStore) Resolve(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[id].Status = models.AlertResolved
	return nil
}

func (s *fakeAlertStore) ListResolvedByFingerprint(ctx context.Context, fingerprint string, limit int) ([]*models.Alert, error) {
	return nil, nil
}

func (s *fakeAlertStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeLadderStore struct {
	byRule map[int64]*models.EscalationRule
}

func (s *fakeLadderStore) Create(ctx context.Context, rule *models.EscalationRule) error { return nil }
func (s *fakeLadderStore) GetByID(ctx context.Context, id int64) (*models.EscalationRule, error) {
	return nil, nil
}
func (s *fakeLadderStore) GetByAlertRuleID(ctx context.Context, alertRuleID int64) (*models.EscalationRule, error) {
	return s.byRule[alertRuleID], nil
}
func (s *fakeLadderStore) GetAll(ctx context.Context) ([]*models.EscalationRule, error) {
	return nil, nil
}
func (s *fakeLadderStore) Update(ctx context.Context, rule *models.EscalationRule) error { return nil }
func (s *fakeLadderStore) Delete(ctx context.Context, id int64) error                    { return nil }

type fakeHistoryStore struct {
	mu      sync.Mutex
	entries []*models.EscalationHistory
}

func (s *fakeHistoryStore) Append(ctx context.Context, entry *models.EscalationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *fakeHistoryStore) ListByAlert(ctx context.Context, alertID string) ([]*models.EscalationHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.EscalationHistory
	for _, e := range s.entries {
		if e.AlertID == alertID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type notifyCall struct {
	severity          models.Severity
	severityIncreased bool
}

type harness struct {
	engine   *Engine
	alerts   *fakeAlertStore
	ladders  *fakeLadderStore
	history  *fakeHistoryStore
	mu       sync.Mutex
	notified []notifyCall
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	h := &harness{
		alerts:  &fakeAlertStore{alerts: make(map[string]*models.Alert)},
		ladders: &fakeLadderStore{byRule: make(map[int64]*models.EscalationRule)},
		history: &fakeHistoryStore{},
	}
	h.engine = NewEngine(h.alerts, h.ladders, h.history, alerts.NewKeyLock(), time.Second, log)
	h.engine.SetNotifier(func(ctx context.Context, alert *models.Alert, severityIncreased bool) {
		h.mu.Lock()
		h.notified = append(h.notified, notifyCall{alert.Severity, severityIncreased})
		h.mu.Unlock()
	})
	return h
}

func twoLevelLadder(ruleID int64) *models.EscalationRule {
	return &models.EscalationRule{
		ID:          1,
		AlertRuleID: ruleID,
		Levels: []models.EscalationLevel{
			{Level: 1, DelayMinutes: 30, TargetSeverity: models.SeverityWarning},
			{Level: 2, DelayMinutes: 60, TargetSeverity: models.SeverityCritical},
		},
	}
}

func firingAlert(firedAgo time.Duration) *models.Alert {
	return &models.Alert{
		ID:           "alert-1",
		RuleID:       7,
		Fingerprint:  "fp-1",
		Status:       models.AlertFiring,
		Severity:     models.SeverityInfo,
		FirstFiredAt: time.Now().Add(-firedAgo),
		LastFiredAt:  time.Now(),
	}
}

func TestTimerEscalationClimbsLadder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ladders.byRule[7] = twoLevelLadder(7)
	alert := firingAlert(65 * time.Minute)
	require.NoError(t, h.alerts.Create(ctx, alert))
	require.NoError(t, h.engine.Register(ctx, alert))

	// Both levels are overdue; one pass drains the heap, firing level 1
	// and then the level 2 timer it arms.
	h.engine.fireDue()

	entries, err := h.history.ListByAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2, "exactly one history entry per ladder level")

	assert.Equal(t, 1, entries[0].Level)
	assert.Equal(t, models.SeverityInfo, entries[0].FromSeverity)
	assert.Equal(t, models.SeverityWarning, entries[0].ToSeverity)
	assert.True(t, entries[0].EscalatedBySystem)

	assert.Equal(t, 2, entries[1].Level)
	assert.Equal(t, models.SeverityWarning, entries[1].FromSeverity)
	assert.Equal(t, models.SeverityCritical, entries[1].ToSeverity)

	got, err := h.alerts.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, got.Severity)

	require.Len(t, h.notified, 2)
	assert.True(t, h.notified[0].severityIncreased)
	assert.True(t, h.notified[1].severityIncreased)

	// Ladder exhausted; another pass must not re-escalate.
	h.engine.fireDue()
	entries, _ = h.history.ListByAlert(ctx, alert.ID)
	assert.Len(t, entries, 2)
}

func TestTimerDoesNotFireEarly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ladders.byRule[7] = twoLevelLadder(7)
	alert := firingAlert(5 * time.Minute)
	require.NoError(t, h.alerts.Create(ctx, alert))
	require.NoError(t, h.engine.Register(ctx, alert))

	h.engine.fireDue()

	entries, _ := h.history.ListByAlert(ctx, alert.ID)
	assert.Empty(t, entries, "level 1 is due at +30m, not +5m")
}

func TestDisarmCancelsPendingTimers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ladders.byRule[7] = twoLevelLadder(7)
	alert := firingAlert(65 * time.Minute)
	require.NoError(t, h.alerts.Create(ctx, alert))
	require.NoError(t, h.engine.Register(ctx, alert))

	h.engine.Disarm(alert.ID)
	h.engine.Disarm(alert.ID) // idempotent

	h.engine.fireDue()

	entries, _ := h.history.ListByAlert(ctx, alert.ID)
	assert.Empty(t, entries)
	assert.Empty(t, h.notified)
}

func TestAcknowledgedAlertDoesNotEscalate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ladders.byRule[7] = twoLevelLadder(7)
	alert := firingAlert(65 * time.Minute)
	alert.Status = models.AlertAcknowledged
	require.NoError(t, h.alerts.Create(ctx, alert))
	require.NoError(t, h.engine.Register(ctx, alert))

	h.engine.fireDue()

	entries, _ := h.history.ListByAlert(ctx, alert.ID)
	assert.Empty(t, entries, "timer fired after acknowledge must be discarded")
}

func TestRegisterWithoutLadderIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alert := firingAlert(65 * time.Minute)
	require.NoError(t, h.alerts.Create(ctx, alert))
	require.NoError(t, h.engine.Register(ctx, alert))

	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	assert.Empty(t, h.engine.timers)
}

func TestEscalateManualConsumesLevels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ladders.byRule[7] = twoLevelLadder(7)
	alert := firingAlert(time.Minute)
	require.NoError(t, h.alerts.Create(ctx, alert))
	require.NoError(t, h.engine.Register(ctx, alert))

	got, err := h.engine.EscalateManual(ctx, alert.ID, "oncall-alice")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityWarning, got.Severity)

	got, err = h.engine.EscalateManual(ctx, alert.ID, "oncall-alice")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, got.Severity)

	_, err = h.engine.EscalateManual(ctx, alert.ID, "oncall-alice")
	require.Error(t, err, "ladder exhausted")

	entries, _ := h.history.ListByAlert(ctx, alert.ID)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.EscalatedBySystem)
		assert.Equal(t, "oncall-alice", e.EscalatedBy)
	}
}

func TestEscalateManualRejectsNonFiring(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ladders.byRule[7] = twoLevelLadder(7)
	alert := firingAlert(time.Minute)
	alert.Status = models.AlertAcknowledged
	require.NoError(t, h.alerts.Create(ctx, alert))

	_, err := h.engine.EscalateManual(ctx, alert.ID, "oncall-alice")
	require.Error(t, err)
}

func TestTimerSkipsManuallyConsumedLevel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ladders.byRule[7] = twoLevelLadder(7)
	// Level 1 overdue, level 2 not yet due.
	alert := firingAlert(35 * time.Minute)
	require.NoError(t, h.alerts.Create(ctx, alert))
	require.NoError(t, h.engine.Register(ctx, alert))

	_, err := h.engine.EscalateManual(ctx, alert.ID, "oncall-alice")
	require.NoError(t, err)

	// The stale level 1 timer fires but the level was consumed by hand;
	// it must re-arm level 2 instead of double-escalating.
	h.engine.fireDue()

	entries, _ := h.history.ListByAlert(ctx, alert.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Level)

	got, err := h.alerts.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityWarning, got.Severity)
}

func TestValidateLevels(t *testing.T) {
	cases := []struct {
		name    string
		levels  []models.EscalationLevel
		wantErr bool
	}{
		{"empty", nil, true},
		{"single valid", []models.EscalationLevel{
			{Level: 1, DelayMinutes: 15, TargetSeverity: models.SeverityWarning},
		}, false},
		{"two ascending", []models.EscalationLevel{
			{Level: 1, DelayMinutes: 15, TargetSeverity: models.SeverityWarning},
			{Level: 2, DelayMinutes: 30, TargetSeverity: models.SeverityCritical},
		}, false},
		{"duplicate level", []models.EscalationLevel{
			{Level: 1, DelayMinutes: 15, TargetSeverity: models.SeverityWarning},
			{Level: 1, DelayMinutes: 30, TargetSeverity: models.SeverityCritical},
		}, true},
		{"non-increasing delay", []models.EscalationLevel{
			{Level: 1, DelayMinutes: 30, TargetSeverity: models.SeverityWarning},
			{Level: 2, DelayMinutes: 30, TargetSeverity: models.SeverityCritical},
		}, true},
		{"zero delay", []models.EscalationLevel{
			{Level: 1, DelayMinutes: 0, TargetSeverity: models.SeverityWarning},
		}, true},
		{"unknown severity", []models.EscalationLevel{
			{Level: 1, DelayMinutes: 15, TargetSeverity: "fatal"},
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLevels(tc.levels)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
