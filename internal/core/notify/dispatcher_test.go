package notify

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

type fakeRuleRepo struct {
	rules map[int64]*models.AlertRule
}

func (r *fakeRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error { return nil }
func (r *fakeRuleRepo) GetByID(ctx context.Context, id int64) (*models.AlertRule, error) {
	rule, ok := r.rules[id]
	if !ok {
		return nil, apperrors.WithDetails(apperrors.ErrNotFound, "rule not found")
	}
	return rule, nil
}
func (r *fakeRuleRepo) GetAll(ctx context.Context) ([]*models.AlertRule, error)     { return nil, nil }
func (r *fakeRuleRepo) GetEnabled(ctx context.Context) ([]*models.AlertRule, error) { return nil, nil }
func (r *fakeRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error    { return nil }
func (r *fakeRuleRepo) Delete(ctx context.Context, id int64) error                  { return nil }
func (r *fakeRuleRepo) TouchEvaluated(ctx context.Context, id int64, at time.Time) error {
	return nil
}

type fakeChannelRepo struct {
	channels map[int64]*models.NotificationChannel
}

func (r *fakeChannelRepo) Create(ctx context.Context, channel *models.NotificationChannel) error {
	return nil
}
func (r *fakeChannelRepo) GetByID(ctx context.Context, id int64) (*models.NotificationChannel, error) {
	ch, ok := r.channels[id]
	if !ok {
		return nil, apperrors.WithDetails(apperrors.ErrNotFound, "channel not found")
	}
	return ch, nil
}
func (r *fakeChannelRepo) GetAll(ctx context.Context) ([]*models.NotificationChannel, error) {
	return nil, nil
}
func (r *fakeChannelRepo) Update(ctx context.Context, channel *models.NotificationChannel) error {
	return nil
}
func (r *fakeChannelRepo) Delete(ctx context.Context, id int64) error { return nil }

type fakeLogRepo struct {
	mu   sync.Mutex
	logs map[string]*models.NotificationLog
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{logs: make(map[string]*models.NotificationLog)}
}

func (r *fakeLogRepo) Create(ctx context.Context, log *models.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.logs[log.ID] = &cp
	return nil
}

func (r *fakeLogRepo) GetByID(ctx context.Context, id string) (*models.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	if !ok {
		return nil, apperrors.WithDetails(apperrors.ErrNotFound, "log not found")
	}
	cp := *l
	return &cp, nil
}

func (r *fakeLogRepo) List(ctx context.Context, filter repositories.NotificationLogFilter) ([]*models.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.NotificationLog
	for _, l := range r.logs {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeLogRepo) UpdateDelivery(ctx context.Context, id string, status models.NotificationStatus, responseCode int, retries int, errMsg string, sentAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	if !ok {
		return apperrors.WithDetails(apperrors.ErrNotFound, "log not found")
	}
	l.Status = status
	l.Retries = retries
	l.SentAt = sentAt
	if responseCode != 0 {
		l.ResponseCode.Int64 = int64(responseCode)
		l.ResponseCode.Valid = true
	}
	l.Error.String = errMsg
	l.Error.Valid = errMsg != ""
	return nil
}

func (r *fakeLogRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeLogRepo) byStatus(status models.NotificationStatus) []*models.NotificationLog {
	out, _ := r.List(context.Background(), repositories.NotificationLogFilter{Status: status})
	return out
}

type fakeSilenceRepo struct {
	windows []*models.SilenceWindow
}

func (r *fakeSilenceRepo) Create(ctx context.Context, window *models.SilenceWindow) error {
	return nil
}
func (r *fakeSilenceRepo) GetAll(ctx context.Context) ([]*models.SilenceWindow, error) {
	return r.windows, nil
}
func (r *fakeSilenceRepo) GetEnabled(ctx context.Context) ([]*models.SilenceWindow, error) {
	var out []*models.SilenceWindow
	for _, w := range r.windows {
		if w.Enabled {
			out = append(out, w)
		}
	}
	return out, nil
}
func (r *fakeSilenceRepo) Update(ctx context.Context, window *models.SilenceWindow) error {
	return nil
}
func (r *fakeSilenceRepo) Delete(ctx context.Context, id int64) error { return nil }

// fakeSender returns scripted results in order, repeating the last one.
type fakeSender struct {
	mu      sync.Mutex
	results []sendResult
	calls   int
}

type sendResult struct {
	code int
	err  error
}

func (s *fakeSender) Send(ctx context.Context, message string, channel *models.NotificationChannel) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	res := s.results[idx]
	return res.code, res.err
}

type dispatcherFixture struct {
	d        *Dispatcher
	rules    *fakeRuleRepo
	channels *fakeChannelRepo
	logs     *fakeLogRepo
	silences *fakeSilenceRepo
	sender   *fakeSender
}

func newDispatcherFixture(t *testing.T, cfg Config) *dispatcherFixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	f := &dispatcherFixture{
		rules:    &fakeRuleRepo{rules: make(map[int64]*models.AlertRule)},
		channels: &fakeChannelRepo{channels: make(map[int64]*models.NotificationChannel)},
		logs:     newFakeLogRepo(),
		silences: &fakeSilenceRepo{},
		sender:   &fakeSender{results: []sendResult{{200, nil}}},
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	f.d = NewDispatcher(f.rules, f.channels, f.logs, f.silences, cfg, log)
	f.d.RegisterSender(models.ChannelWebhook, f.sender)

	f.rules.rules[1] = &models.AlertRule{
		ID:              1,
		Name:            "high cpu",
		Target:          "web-1",
		Threshold:       90,
		CooldownSeconds: 300,
		ChannelIDs:      models.JSONInt64s{10},
	}
	f.channels.channels[10] = &models.NotificationChannel{
		ID:      10,
		Name:    "ops-webhook",
		Type:    models.ChannelWebhook,
		Config:  models.JSONMap{"url": "http://hooks.internal/ops"},
		Enabled: true,
	}
	return f
}

func dispatchAlert() *models.Alert {
	return &models.Alert{
		ID:            "a-1",
		RuleID:        1,
		Fingerprint:   "fp-1",
		Status:        models.AlertFiring,
		Severity:      models.SeverityWarning,
		Title:         "high cpu",
		Message:       "high cpu on web-1: observed 97 > 90",
		ObservedValue: 97,
		FirstFiredAt:  time.Now(),
	}
}

// drainOne pops the single queued job and delivers it synchronously.
func (f *dispatcherFixture) drainOne(t *testing.T) {
	t.Helper()
	select {
	case j := <-f.d.queue:
		f.d.deliver(j)
	default:
		t.Fatal("expected a queued delivery job")
	}
}

func TestDispatchQueuesPendingDelivery(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	ctx := context.Background()

	f.d.DispatchAlert(ctx, dispatchAlert(), false)

	pending := f.logs.byStatus(models.NotificationPending)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].AlertID.Valid)
	assert.Equal(t, "a-1", pending[0].AlertID.String)
	assert.Contains(t, pending[0].Message, "high cpu")

	f.drainOne(t)
	sent := f.logs.byStatus(models.NotificationSent)
	require.Len(t, sent, 1)
	assert.Equal(t, 1, f.sender.calls)
	assert.NotNil(t, sent[0].SentAt)
}

func TestDispatchCooldownSuppresses(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	ctx := context.Background()

	f.d.DispatchAlert(ctx, dispatchAlert(), false)
	f.d.DispatchAlert(ctx, dispatchAlert(), false)

	assert.Len(t, f.logs.byStatus(models.NotificationPending), 1)
	suppressed := f.logs.byStatus(models.NotificationSuppressed)
	require.Len(t, suppressed, 1)
	assert.Equal(t, "suppressed by cooldown", suppressed[0].Error.String)
}

func TestSeverityIncreaseBypassesCooldown(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	ctx := context.Background()

	f.d.DispatchAlert(ctx, dispatchAlert(), false)

	escalated := dispatchAlert()
	escalated.Severity = models.SeverityCritical
	f.d.DispatchAlert(ctx, escalated, true)

	assert.Len(t, f.logs.byStatus(models.NotificationPending), 2)
	assert.Empty(t, f.logs.byStatus(models.NotificationSuppressed))
}

func TestDispatchSilenceWindowSuppresses(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	ctx := context.Background()

	now := time.Now()
	f.silences.windows = []*models.SilenceWindow{{
		ID:        1,
		Name:      "nightly maintenance",
		StartTime: now.Add(-time.Hour).Format("15:04"),
		EndTime:   now.Add(time.Hour).Format("15:04"),
		Enabled:   true,
	}}

	f.d.DispatchAlert(ctx, dispatchAlert(), false)

	assert.Empty(t, f.logs.byStatus(models.NotificationPending))
	suppressed := f.logs.byStatus(models.NotificationSuppressed)
	require.Len(t, suppressed, 1)
	assert.Contains(t, suppressed[0].Error.String, "nightly maintenance")
}

func TestDispatchDisabledSilenceWindowIgnored(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	ctx := context.Background()

	now := time.Now()
	f.silences.windows = []*models.SilenceWindow{{
		ID:        1,
		Name:      "off",
		StartTime: now.Add(-time.Hour).Format("15:04"),
		EndTime:   now.Add(time.Hour).Format("15:04"),
		Enabled:   false,
	}}

	f.d.DispatchAlert(ctx, dispatchAlert(), false)
	assert.Len(t, f.logs.byStatus(models.NotificationPending), 1)
}

func TestDispatchDefaultChannelFallback(t *testing.T) {
	f := newDispatcherFixture(t, Config{DefaultChannelID: 10})
	ctx := context.Background()

	f.rules.rules[1].ChannelIDs = nil
	f.d.DispatchAlert(ctx, dispatchAlert(), false)

	pending := f.logs.byStatus(models.NotificationPending)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(10), pending[0].ChannelID)
}

func TestDispatchSkipsDisabledChannel(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	ctx := context.Background()

	f.channels.channels[10].Enabled = false
	f.d.DispatchAlert(ctx, dispatchAlert(), false)

	assert.Empty(t, f.logs.logs)
}

func TestDeliverRetriesTransientThenSucceeds(t *testing.T) {
	f := newDispatcherFixture(t, Config{MaxRetries: 3})
	ctx := context.Background()

	f.sender.results = []sendResult{
		{503, apperrors.Transient(assert.AnError)},
		{200, nil},
	}

	f.d.DispatchAlert(ctx, dispatchAlert(), false)
	f.drainOne(t)

	sent := f.logs.byStatus(models.NotificationSent)
	require.Len(t, sent, 1)
	assert.Equal(t, 1, sent[0].Retries)
	assert.Equal(t, 2, f.sender.calls)
}

func TestDeliverPermanentFailureDoesNotRetry(t *testing.T) {
	f := newDispatcherFixture(t, Config{MaxRetries: 3})
	ctx := context.Background()

	f.sender.results = []sendResult{{400, assert.AnError}}

	f.d.DispatchAlert(ctx, dispatchAlert(), false)
	f.drainOne(t)

	failed := f.logs.byStatus(models.NotificationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, 0, failed[0].Retries)
	assert.Equal(t, 1, f.sender.calls)
}

func TestDeliverExhaustsRetryBudget(t *testing.T) {
	f := newDispatcherFixture(t, Config{MaxRetries: 2})
	ctx := context.Background()

	f.sender.results = []sendResult{{503, apperrors.Transient(assert.AnError)}}

	f.d.DispatchAlert(ctx, dispatchAlert(), false)
	f.drainOne(t)

	failed := f.logs.byStatus(models.NotificationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Retries)
	assert.Equal(t, 3, f.sender.calls, "initial attempt plus two retries")
}

func TestRetryRejectsSentAndPendingLogs(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	ctx := context.Background()

	f.d.DispatchAlert(ctx, dispatchAlert(), false)
	pending := f.logs.byStatus(models.NotificationPending)
	require.Len(t, pending, 1)

	err := f.d.Retry(ctx, pending[0].ID)
	require.Error(t, err, "in-flight delivery must not be re-queued")

	f.drainOne(t)
	sent := f.logs.byStatus(models.NotificationSent)
	require.Len(t, sent, 1)

	err = f.d.Retry(ctx, sent[0].ID)
	require.Error(t, err, "sent notification must not be re-sent")
}

func TestRetryRequeuesFailedLog(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	ctx := context.Background()

	f.sender.results = []sendResult{{400, assert.AnError}, {200, nil}}

	f.d.DispatchAlert(ctx, dispatchAlert(), false)
	f.drainOne(t)
	failed := f.logs.byStatus(models.NotificationFailed)
	require.Len(t, failed, 1)

	require.NoError(t, f.d.Retry(ctx, failed[0].ID))
	f.drainOne(t)

	sent := f.logs.byStatus(models.NotificationSent)
	require.Len(t, sent, 1)
	assert.Equal(t, failed[0].ID, sent[0].ID)
}

func TestOnDeliveredFiresOnSuccessOnly(t *testing.T) {
	f := newDispatcherFixture(t, Config{MaxRetries: 1})
	ctx := context.Background()

	var delivered []*models.NotificationLog
	f.d.OnDelivered(func(logEntry *models.NotificationLog) {
		delivered = append(delivered, logEntry)
	})

	f.d.DispatchAlert(ctx, dispatchAlert(), false)
	f.drainOne(t)
	require.Len(t, delivered, 1)
	assert.Equal(t, models.NotificationSent, delivered[0].Status)
	assert.Equal(t, "a-1", delivered[0].AlertID.String)

	f.sender.results = []sendResult{{400, assert.AnError}}
	escalated := dispatchAlert()
	escalated.Severity = models.SeverityCritical
	f.d.DispatchAlert(ctx, escalated, true)
	f.drainOne(t)
	assert.Len(t, delivered, 1, "failed delivery must not fire the hook")
}

func TestTestSendHasNoAlert(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	ctx := context.Background()

	logEntry, err := f.d.TestSend(ctx, 10)
	require.NoError(t, err)
	assert.False(t, logEntry.AlertID.Valid)

	f.drainOne(t)
	sent := f.logs.byStatus(models.NotificationSent)
	require.Len(t, sent, 1)
}
