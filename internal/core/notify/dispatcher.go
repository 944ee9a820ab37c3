package notify

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/core/metrics"
	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

// Config contains dispatcher tuning.
type Config struct {
	Workers          int
	QueueSize        int
	DefaultChannelID int64
	DefaultCooldown  time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	SendTimeout      time.Duration
}

// job is one queued delivery: the log row already exists in pending
// state; the worker attempts delivery and records the outcome.
type job struct {
	logID   string
	channel *models.NotificationChannel
	message string
	retries int
}

// Dispatcher fans alert notifications out to channels under cooldown
// and silence policies, on a bounded worker pool.
type Dispatcher struct {
	rules    repositories.AlertRuleRepository
	channels repositories.NotificationChannelRepository
	logs     repositories.NotificationLogRepository
	silences repositories.SilenceWindowRepository
	logger   *logrus.Logger
	cfg      Config

	senders     map[models.ChannelType]Sender
	onDelivered func(logEntry *models.NotificationLog)

	mu        sync.Mutex
	lastSends map[string]lastSend

	queue   chan *job
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex
}

type lastSend struct {
	at       time.Time
	severity models.Severity
}

// NewDispatcher creates the notification dispatcher.
func NewDispatcher(
	rules repositories.AlertRuleRepository,
	channels repositories.NotificationChannelRepository,
	logs repositories.NotificationLogRepository,
	silences repositories.SilenceWindowRepository,
	cfg Config,
	logger *logrus.Logger,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		rules:     rules,
		channels:  channels,
		logs:      logs,
		silences:  silences,
		logger:    logger,
		cfg:       cfg,
		senders:   make(map[models.ChannelType]Sender),
		lastSends: make(map[string]lastSend),
		queue:     make(chan *job, cfg.QueueSize),
	}

	d.senders[models.ChannelWebhook] = NewWebhookSender(cfg.SendTimeout)
	d.senders[models.ChannelDingTalk] = NewDingTalkSender(cfg.SendTimeout)
	d.senders[models.ChannelWeCom] = NewWeComSender(cfg.SendTimeout)
	d.senders[models.ChannelSlack] = NewSlackSender(cfg.SendTimeout)
	d.senders[models.ChannelEmail] = NewEmailSender()

	return d
}

// RegisterSender overrides or adds the sender for a channel type.
func (d *Dispatcher) RegisterSender(t models.ChannelType, s Sender) {
	d.senders[t] = s
}

// OnDelivered registers a callback invoked after each successful
// delivery. Must be set before Start.
func (d *Dispatcher) OnDelivered(fn func(logEntry *models.NotificationLog)) {
	d.onDelivered = fn
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.running {
		return fmt.Errorf("dispatcher is already running")
	}
	d.running = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.WithField("workers", d.cfg.Workers).Info("Notification dispatcher started")
	return nil
}

// Stop drains the queue and waits for workers to finish.
func (d *Dispatcher) Stop() {
	d.runMu.Lock()
	if !d.running {
		d.runMu.Unlock()
		return
	}
	d.running = false
	d.runMu.Unlock()

	close(d.queue)
	d.wg.Wait()
	d.logger.Info("Notification dispatcher stopped")
}

// DispatchAlert runs one notification cycle for an alert: resolve the
// channel set, apply silence and cooldown policies, queue deliveries.
// Severity increases bypass cooldown; repeats and de-escalations do not.
func (d *Dispatcher) DispatchAlert(ctx context.Context, alert *models.Alert, severityIncreased bool) {
	rule, err := d.rules.GetByID(ctx, alert.RuleID)
	if err != nil {
		d.logger.WithError(err).WithField("alert_id", alert.ID).Error("Cannot dispatch: rule lookup failed")
		return
	}

	channelIDs := rule.ChannelIDs
	if len(channelIDs) == 0 && d.cfg.DefaultChannelID != 0 {
		channelIDs = models.JSONInt64s{d.cfg.DefaultChannelID}
	}
	if len(channelIDs) == 0 {
		d.logger.WithField("alert_id", alert.ID).Warn("No channels configured for alert, skipping notification")
		return
	}

	template := ""
	if rule.MessageTemplate.Valid {
		template = rule.MessageTemplate.String
	}
	message := Render(template, Vars(alert, rule))

	silenced, windowName := d.inSilenceWindow(ctx, time.Now())

	for _, channelID := range channelIDs {
		channel, err := d.channels.GetByID(ctx, channelID)
		if err != nil {
			d.logger.WithError(err).WithField("channel_id", channelID).Error("Skipping unknown channel")
			continue
		}
		if !channel.Enabled {
			continue
		}

		if silenced {
			d.writeSuppressed(ctx, alert.ID, channel.ID, message,
				fmt.Sprintf("suppressed by silence window %q", windowName))
			continue
		}

		if !severityIncreased && d.inCooldown(alert.Fingerprint, channel.ID, rule.Cooldown()) {
			d.writeSuppressed(ctx, alert.ID, channel.ID, message, "suppressed by cooldown")
			continue
		}

		d.recordSend(alert.Fingerprint, channel.ID, alert.Severity)
		d.enqueue(ctx, alert.ID, channel, message)
	}
}

// TestSend delivers a sample message to one channel, logging it with
// no associated alert.
func (d *Dispatcher) TestSend(ctx context.Context, channelID int64) (*models.NotificationLog, error) {
	channel, err := d.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	message := "opswatch channel test: if you can read this, delivery works"
	logEntry := d.newLog("", channel.ID, message)
	if err := d.logs.Create(ctx, logEntry); err != nil {
		return nil, err
	}

	d.queue <- &job{logID: logEntry.ID, channel: channel, message: message}
	return logEntry, nil
}

// Retry re-attempts a failed notification by operator action.
// Retrying an already-sent log is rejected.
func (d *Dispatcher) Retry(ctx context.Context, logID string) error {
	logEntry, err := d.logs.GetByID(ctx, logID)
	if err != nil {
		return err
	}
	if logEntry.Status == models.NotificationSent {
		return apperrors.WithDetails(apperrors.ErrConflict, "notification already sent")
	}
	if logEntry.Status == models.NotificationPending {
		return apperrors.WithDetails(apperrors.ErrConflict, "notification delivery still in progress")
	}

	channel, err := d.channels.GetByID(ctx, logEntry.ChannelID)
	if err != nil {
		return err
	}

	if err := d.logs.UpdateDelivery(ctx, logID, models.NotificationPending, 0, logEntry.Retries, "", nil); err != nil {
		return err
	}

	d.queue <- &job{logID: logID, channel: channel, message: logEntry.Message, retries: logEntry.Retries}
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, alertID string, channel *models.NotificationChannel, message string) {
	logEntry := d.newLog(alertID, channel.ID, message)
	if err := d.logs.Create(ctx, logEntry); err != nil {
		d.logger.WithError(err).Error("Failed to create notification log")
		return
	}

	select {
	case d.queue <- &job{logID: logEntry.ID, channel: channel, message: message}:
	default:
		d.logger.WithField("log_id", logEntry.ID).Warn("Notification queue full, marking failed")
		d.logs.UpdateDelivery(ctx, logEntry.ID, models.NotificationFailed, 0, 0, "dispatch queue full", nil)
	}
}

func (d *Dispatcher) newLog(alertID string, channelID int64, message string) *models.NotificationLog {
	logEntry := &models.NotificationLog{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		Status:    models.NotificationPending,
		Message:   message,
	}
	if alertID != "" {
		logEntry.AlertID = sql.NullString{String: alertID, Valid: true}
	}
	return logEntry
}

func (d *Dispatcher) writeSuppressed(ctx context.Context, alertID string, channelID int64, message, reason string) {
	logEntry := d.newLog(alertID, channelID, message)
	logEntry.Status = models.NotificationSuppressed
	logEntry.Error = sql.NullString{String: reason, Valid: true}
	if err := d.logs.Create(ctx, logEntry); err != nil {
		d.logger.WithError(err).Error("Failed to log suppressed notification")
		return
	}
	metrics.RecordNotification("suppressed")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

// deliver attempts delivery with bounded retries on transient errors.
func (d *Dispatcher) deliver(j *job) {
	sender, ok := d.senders[j.channel.Type]
	if !ok {
		d.failLog(j, 0, fmt.Sprintf("no sender for channel type %s", j.channel.Type))
		return
	}

	for {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
		code, err := sender.Send(ctx, j.message, j.channel)
		cancel()

		if err == nil {
			now := time.Now()
			if uerr := d.logs.UpdateDelivery(context.Background(), j.logID,
				models.NotificationSent, code, j.retries, "", &now); uerr != nil {
				d.logger.WithError(uerr).Error("Failed to record delivery")
			}
			metrics.RecordNotification("sent")
			d.logger.WithFields(logrus.Fields{
				"log_id":  j.logID,
				"channel": j.channel.ID,
				"code":    code,
				"retries": j.retries,
			}).Debug("Notification delivered")
			if d.onDelivered != nil {
				if logEntry, gerr := d.logs.GetByID(context.Background(), j.logID); gerr == nil {
					d.onDelivered(logEntry)
				}
			}
			return
		}

		if !apperrors.IsTransient(err) || j.retries >= d.cfg.MaxRetries {
			d.failLog(j, code, err.Error())
			return
		}

		j.retries++
		d.logger.WithFields(logrus.Fields{
			"log_id":  j.logID,
			"channel": j.channel.ID,
			"attempt": j.retries,
		}).Warn("Transient delivery failure, retrying")
		time.Sleep(d.cfg.RetryBackoff * time.Duration(j.retries))
	}
}

func (d *Dispatcher) failLog(j *job, code int, errMsg string) {
	if err := d.logs.UpdateDelivery(context.Background(), j.logID,
		models.NotificationFailed, code, j.retries, errMsg, nil); err != nil {
		d.logger.WithError(err).Error("Failed to record delivery failure")
	}
	metrics.RecordNotification("failed")
	d.logger.WithFields(logrus.Fields{
		"log_id":  j.logID,
		"channel": j.channel.ID,
		"error":   errMsg,
	}).Error("Notification delivery failed")
}

func (d *Dispatcher) inCooldown(fingerprint string, channelID int64, cooldown time.Duration) bool {
	if cooldown <= 0 {
		cooldown = d.cfg.DefaultCooldown
	}
	if cooldown <= 0 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastSends[cooldownKey(fingerprint, channelID)]
	return ok && time.Since(last.at) < cooldown
}

func (d *Dispatcher) recordSend(fingerprint string, channelID int64, severity models.Severity) {
	d.mu.Lock()
	d.lastSends[cooldownKey(fingerprint, channelID)] = lastSend{at: time.Now(), severity: severity}
	d.mu.Unlock()
}

func cooldownKey(fingerprint string, channelID int64) string {
	return fmt.Sprintf("%s/%d", fingerprint, channelID)
}

// inSilenceWindow reports whether now falls inside an enabled silence
// window. Windows are daily "HH:MM" ranges and may wrap past midnight.
func (d *Dispatcher) inSilenceWindow(ctx context.Context, now time.Time) (bool, string) {
	windows, err := d.silences.GetEnabled(ctx)
	if err != nil {
		d.logger.WithError(err).Error("Failed to load silence windows")
		return false, ""
	}

	minutes := now.Hour()*60 + now.Minute()
	for _, w := range windows {
		start, serr := parseClock(w.StartTime)
		end, eerr := parseClock(w.EndTime)
		if serr != nil || eerr != nil {
			d.logger.WithField("window_id", w.ID).Warn("Skipping silence window with invalid times")
			continue
		}
		if start <= end {
			if minutes >= start && minutes < end {
				return true, w.Name
			}
		} else {
			// Wraps past midnight.
			if minutes >= start || minutes < end {
				return true, w.Name
			}
		}
	}
	return false, ""
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
