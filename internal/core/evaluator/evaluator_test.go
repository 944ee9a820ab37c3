package evaluator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/opswatch-backend-go/internal/core/alerts"
	"github.com/opswatch/opswatch-backend-go/internal/core/signals"
	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

type fakeRules struct {
	mu      sync.Mutex
	enabled []*models.AlertRule
	touches map[int64]int
}

func newFakeRules(rules ...*models.AlertRule) *fakeRules {
	return &fakeRules{enabled: rules, touches: make(map[int64]int)}
}

func (r *fakeRules) Create(ctx context.Context, rule *models.AlertRule) error { return nil }
func (r *fakeRules) GetByID(ctx context.Context, id int64) (*models.AlertRule, error) {
	return nil, apperrors.ErrNotFound
}
func (r *fakeRules) GetAll(ctx context.Context) ([]*models.AlertRule, error) { return nil, nil }
func (r *fakeRules) GetEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.AlertRule(nil), r.enabled...), nil
}
func (r *fakeRules) Update(ctx context.Context, rule *models.AlertRule) error { return nil }
func (r *fakeRules) Delete(ctx context.Context, id int64) error               { return nil }
func (r *fakeRules) TouchEvaluated(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches[id]++
	return nil
}

func (r *fakeRules) touchCount(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touches[id]
}

// fakeSignalAlertRepo backs the dedup service during evaluator tests.
type fakeSignalAlertRepo struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert
}

func newFakeSignalAlertRepo() *fakeSignalAlertRepo {
	return &fakeSignalAlertRepo{alerts: make(map[string]*models.Alert)}
}

func (r *fakeSignalAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *alert
	r.alerts[alert.ID] = &cp
	return nil
}

func (r *fakeSignalAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeSignalAlertRepo) GetOpenByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.Fingerprint == fingerprint && a.Status != models.AlertResolved {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeSignalAlertRepo) List(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
	return nil, nil
}

func (r *fakeSignalAlertRepo) RecordOccurrence(ctx context.Context, id string, observed float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.alerts[id]; ok {
		a.OccurrenceCount++
		a.ObservedValue = observed
	}
	return nil
}

func (r *fakeSignalAlertRepo) UpdateSeverity(ctx context.Context, id string, severity models.Severity) error {
	return nil
}

func (r *fakeSignalAlertRepo) Acknowledge(ctx context.Context, id, user string) error { return nil }

func (r *fakeSignalAlertRepo) Resolve(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.alerts[id]; ok {
		a.Status = models.AlertResolved
	}
	return nil
}

func (r *fakeSignalAlertRepo) ListResolvedByFingerprint(ctx context.Context, fingerprint string, limit int) ([]*models.Alert, error) {
	return nil, nil
}

func (r *fakeSignalAlertRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// fakeSource serves whatever value function it is given.
type fakeSource struct {
	mu      sync.Mutex
	value   float64
	err     error
	fetches int
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Fetch(ctx context.Context, target string, query signals.Query) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.value, s.err
}

func (s *fakeSource) set(value float64, err error) {
	s.mu.Lock()
	s.value = value
	s.err = err
	s.mu.Unlock()
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type evalFixture struct {
	engine *Engine
	rules  *fakeRules
	alerts *fakeSignalAlertRepo
	source *fakeSource
}

func newEvalFixture(t *testing.T, cfg Config, rules ...*models.AlertRule) *evalFixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	f := &evalFixture{
		rules:  newFakeRules(rules...),
		alerts: newFakeSignalAlertRepo(),
		source: &fakeSource{value: 0},
	}
	registry := signals.NewRegistry()
	registry.SetDefault(f.source)

	dedup := alerts.NewService(f.alerts, alerts.NewKeyLock(), 2, log)
	f.engine = NewEngine(f.rules, registry, dedup, cfg, log)
	return f
}

func evalRule(window int) *models.AlertRule {
	return &models.AlertRule{
		ID:            1,
		Name:          "high cpu",
		Target:        "host-1",
		ConditionType: models.ConditionMetric,
		ConditionExpr: "cpu_percent",
		Operator:      ">",
		Threshold:     90,
		WindowSeconds: window,
		Severity:      models.SeverityWarning,
		Enabled:       true,
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		observed  float64
		operator  string
		threshold float64
		want      bool
	}{
		{95, ">", 90, true},
		{90, ">", 90, false},
		{90, ">=", 90, true},
		{89, ">=", 90, false},
		{5, "<", 10, true},
		{10, "<", 10, false},
		{10, "<=", 10, true},
		{11, "<=", 10, false},
		{7, "==", 7, true},
		{7, "==", 8, false},
		{7, "!=", 8, true},
		{7, "!=", 7, false},
	}
	for _, tc := range cases {
		got, err := Compare(tc.observed, tc.operator, tc.threshold)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%g %s %g", tc.observed, tc.operator, tc.threshold)
	}

	_, err := Compare(1, "~", 2)
	assert.Error(t, err, "unknown operator must be rejected")
}

func TestTickHonorsEvaluationWindow(t *testing.T) {
	f := newEvalFixture(t, Config{}, evalRule(3600))

	f.engine.Tick()
	assert.Equal(t, 1, f.rules.touchCount(1), "never-evaluated rule is due immediately")
	assert.Equal(t, 1, f.source.fetchCount())

	// Window is an hour; an immediate second pass skips the rule.
	f.engine.Tick()
	assert.Equal(t, 1, f.rules.touchCount(1))
	assert.Equal(t, 1, f.source.fetchCount())
}

func TestTickViolationOpensAlert(t *testing.T) {
	f := newEvalFixture(t, Config{}, evalRule(0))
	f.source.set(95, nil)

	f.engine.Tick()

	open, err := f.alerts.GetOpenByFingerprint(context.Background(), alerts.Fingerprint(f.rules.enabled[0]))
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, 95.0, open.ObservedValue)
}

func TestTickClearWindowsResolve(t *testing.T) {
	f := newEvalFixture(t, Config{}, evalRule(0))
	fp := alerts.Fingerprint(f.rules.enabled[0])
	ctx := context.Background()

	f.source.set(95, nil)
	f.engine.Tick()
	open, _ := f.alerts.GetOpenByFingerprint(ctx, fp)
	require.NotNil(t, open)

	// Two consecutive clear windows auto-resolve (fixture clearWindows=2).
	f.source.set(50, nil)
	f.engine.Tick()
	open, _ = f.alerts.GetOpenByFingerprint(ctx, fp)
	require.NotNil(t, open, "first clear window must not resolve")

	f.engine.Tick()
	open, _ = f.alerts.GetOpenByFingerprint(ctx, fp)
	assert.Nil(t, open)
}

func TestFetchFailuresDegradeRule(t *testing.T) {
	f := newEvalFixture(t, Config{FailureThreshold: 3}, evalRule(0))
	f.source.set(0, assert.AnError)

	for i := 0; i < 2; i++ {
		f.engine.Tick()
		assert.Empty(t, f.engine.Degraded(), "below threshold after %d failures", i+1)
	}

	f.engine.Tick()
	assert.Equal(t, []int64{1}, f.engine.Degraded())

	// Fetch errors still touch last_evaluated_at, keeping the schedule.
	assert.Equal(t, 3, f.rules.touchCount(1))

	// One success clears the degraded flag and the failure streak.
	f.source.set(50, nil)
	f.engine.Tick()
	assert.Empty(t, f.engine.Degraded())
}

func TestFetchFailureIsNotViolation(t *testing.T) {
	f := newEvalFixture(t, Config{FailureThreshold: 3}, evalRule(0))
	f.source.set(0, assert.AnError)

	f.engine.Tick()

	open, err := f.alerts.GetOpenByFingerprint(context.Background(), alerts.Fingerprint(f.rules.enabled[0]))
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestInvalidateRuleDropsCache(t *testing.T) {
	f := newEvalFixture(t, Config{RuleCacheTTL: time.Hour}, evalRule(0))

	f.engine.Tick()
	assert.Equal(t, 1, f.source.fetchCount())

	// A second rule appears; the hour-long TTL would hide it.
	second := evalRule(0)
	second.ID = 2
	second.Target = "host-2"
	f.rules.mu.Lock()
	f.rules.enabled = append(f.rules.enabled, second)
	f.rules.mu.Unlock()

	f.engine.Tick()
	assert.Equal(t, 2, f.source.fetchCount(), "cached set still has one rule")

	f.engine.InvalidateRule(second.ID)
	f.engine.Tick()
	assert.Equal(t, 4, f.source.fetchCount(), "invalidated cache reloads both rules")
}
