package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

// fakeAlertRepo is an in-memory AlertRepository with the same
// single-open-alert-per-fingerprint behavior as the sqlite schema.
type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[string]*models.Alert)}
}

func (r *fakeAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.Fingerprint == alert.Fingerprint && a.Status != models.AlertResolved {
			return apperrors.WithDetails(apperrors.ErrConflict, "open alert exists for fingerprint")
		}
	}
	cp := *alert
	r.alerts[alert.ID] = &cp
	return nil
}

func (r *fakeAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, apperrors.WithDetails(apperrors.ErrNotFound, "alert not found")
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAlertRepo) GetOpenByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error) {
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

func (r *fakeAlertRepo) List(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Alert
	for _, a := range r.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeAlertRepo) RecordOccurrence(ctx context.Context, id string, observed float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return apperrors.WithDetails(apperrors.ErrNotFound, "alert not found")
	}
	a.OccurrenceCount++
	a.ObservedValue = observed
	a.LastFiredAt = at
	return nil
}

func (r *fakeAlertRepo) UpdateSeverity(ctx context.Context, id string, severity models.Severity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return apperrors.WithDetails(apperrors.ErrNotFound, "alert not found")
	}
	a.Severity = severity
	return nil
}

func (r *fakeAlertRepo) Acknowledge(ctx context.Context, id, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok || a.Status != models.AlertFiring {
		return apperrors.WithDetails(apperrors.ErrConflict, "alert is not firing")
	}
	a.Status = models.AlertAcknowledged
	return nil
}

func (r *fakeAlertRepo) Resolve(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return apperrors.WithDetails(apperrors.ErrNotFound, "alert not found")
	}
	a.Status = models.AlertResolved
	a.ResolvedAt = &at
	return nil
}

func (r *fakeAlertRepo) ListResolvedByFingerprint(ctx context.Context, fingerprint string, limit int) ([]*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Alert
	for _, a := range r.alerts {
		if a.Fingerprint == fingerprint && a.Status == models.AlertResolved {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAlertRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func testRule() *models.AlertRule {
	return &models.AlertRule{
		ID:            1,
		Name:          "high cpu",
		Target:        "host-1",
		ConditionType: models.ConditionMetric,
		ConditionExpr: "cpu_percent",
		Operator:      ">",
		Threshold:     90,
		WindowSeconds: 300,
		Severity:      models.SeverityWarning,
		Enabled:       true,
	}
}

func newTestService(repo *fakeAlertRepo, clearWindows int) *Service {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewService(repo, NewKeyLock(), clearWindows, log)
}

func TestHandleViolationDeduplicates(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(repo, 3)
	rule := testRule()
	ctx := context.Background()

	created := 0
	svc.OnCreated(func(ctx context.Context, alert *models.Alert, rule *models.AlertRule) {
		created++
	})

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.HandleViolation(ctx, rule, 95, now.Add(time.Duration(i)*time.Minute)))
	}

	open, err := repo.GetOpenByFingerprint(ctx, Fingerprint(rule))
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, int64(3), open.OccurrenceCount)
	assert.Equal(t, models.AlertFiring, open.Status)
	assert.Equal(t, 1, created, "repeat violations must not re-fire creation hooks")
	assert.Len(t, repo.alerts, 1)
}

func TestHandleViolationNewAlertAfterResolve(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(repo, 3)
	rule := testRule()
	ctx := context.Background()

	require.NoError(t, svc.HandleViolation(ctx, rule, 95, time.Now()))
	first, err := repo.GetOpenByFingerprint(ctx, Fingerprint(rule))
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, first.ID)
	require.NoError(t, err)

	require.NoError(t, svc.HandleViolation(ctx, rule, 97, time.Now()))
	second, err := repo.GetOpenByFingerprint(ctx, Fingerprint(rule))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID, "re-firing starts a fresh alert")
	assert.Equal(t, int64(1), second.OccurrenceCount)
}

func TestHandleClearAutoResolvesAfterStreak(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(repo, 3)
	rule := testRule()
	ctx := context.Background()

	closed := 0
	svc.OnClosed(func(ctx context.Context, alert *models.Alert) {
		closed++
	})

	require.NoError(t, svc.HandleViolation(ctx, rule, 95, time.Now()))

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.HandleClear(ctx, rule))
		open, err := repo.GetOpenByFingerprint(ctx, Fingerprint(rule))
		require.NoError(t, err)
		assert.NotNil(t, open, "alert must survive %d clear windows", i+1)
	}

	require.NoError(t, svc.HandleClear(ctx, rule))
	open, err := repo.GetOpenByFingerprint(ctx, Fingerprint(rule))
	require.NoError(t, err)
	assert.Nil(t, open, "third clear window resolves the alert")
	assert.Equal(t, 1, closed)
}

func TestClearStreakResetsOnViolation(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(repo, 2)
	rule := testRule()
	ctx := context.Background()

	require.NoError(t, svc.HandleViolation(ctx, rule, 95, time.Now()))
	require.NoError(t, svc.HandleClear(ctx, rule))
	// A violation in between restarts the streak.
	require.NoError(t, svc.HandleViolation(ctx, rule, 96, time.Now()))
	require.NoError(t, svc.HandleClear(ctx, rule))

	open, err := repo.GetOpenByFingerprint(ctx, Fingerprint(rule))
	require.NoError(t, err)
	assert.NotNil(t, open, "one clear window after reset must not resolve")

	require.NoError(t, svc.HandleClear(ctx, rule))
	open, err = repo.GetOpenByFingerprint(ctx, Fingerprint(rule))
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestResolveIsIdempotent(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(repo, 3)
	rule := testRule()
	ctx := context.Background()

	require.NoError(t, svc.HandleViolation(ctx, rule, 95, time.Now()))
	open, err := repo.GetOpenByFingerprint(ctx, Fingerprint(rule))
	require.NoError(t, err)

	closed := 0
	svc.OnClosed(func(ctx context.Context, alert *models.Alert) {
		closed++
	})

	_, err = svc.Resolve(ctx, open.ID)
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, open.ID)
	require.NoError(t, err, "resolving a resolved alert is a no-op")
	assert.Equal(t, 1, closed)
}

func TestAcknowledgeHaltsWithoutResolving(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestService(repo, 3)
	rule := testRule()
	ctx := context.Background()

	require.NoError(t, svc.HandleViolation(ctx, rule, 95, time.Now()))
	open, err := repo.GetOpenByFingerprint(ctx, Fingerprint(rule))
	require.NoError(t, err)

	acked, err := svc.Acknowledge(ctx, open.ID, "oncall-bob")
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, acked.Status)

	// Acknowledged alerts still count as open for dedup purposes.
	require.NoError(t, svc.HandleViolation(ctx, rule, 99, time.Now()))
	assert.Len(t, repo.alerts, 1)
}
