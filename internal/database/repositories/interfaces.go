package repositories

import (
	"context"
	"time"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// AlertRuleRepository defines alert rule data access methods. The
// engine only ever writes last_evaluated_at; everything else belongs
// to operator CRUD.
type AlertRuleRepository interface {
	Create(ctx context.Context, rule *models.AlertRule) error
	GetByID(ctx context.Context, id int64) (*models.AlertRule, error)
	GetAll(ctx context.Context) ([]*models.AlertRule, error)
	GetEnabled(ctx context.Context) ([]*models.AlertRule, error)
	Update(ctx context.Context, rule *models.AlertRule) error
	Delete(ctx context.Context, id int64) error
	TouchEvaluated(ctx context.Context, id int64, at time.Time) error
}

// AlertFilter narrows alert list queries.
type AlertFilter struct {
	Status   models.AlertStatus
	Severity models.Severity
	RuleID   int64
	Limit    int
	Offset   int
}

// AlertRepository defines alert data access methods.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	GetOpenByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error)
	List(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)
	RecordOccurrence(ctx context.Context, id string, observed float64, at time.Time) error
	UpdateSeverity(ctx context.Context, id string, severity models.Severity) error
	Acknowledge(ctx context.Context, id, user string) error
	Resolve(ctx context.Context, id string, at time.Time) error
	ListResolvedByFingerprint(ctx context.Context, fingerprint string, limit int) ([]*models.Alert, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EscalationRuleRepository defines escalation ladder data access
// methods. Levels are loaded and stored together with their rule.
type EscalationRuleRepository interface {
	Create(ctx context.Context, rule *models.EscalationRule) error
	GetByID(ctx context.Context, id int64) (*models.EscalationRule, error)
	GetByAlertRuleID(ctx context.Context, alertRuleID int64) (*models.EscalationRule, error)
	GetAll(ctx context.Context) ([]*models.EscalationRule, error)
	Update(ctx context.Context, rule *models.EscalationRule) error
	Delete(ctx context.Context, id int64) error
}

// EscalationHistoryRepository is append-only.
type EscalationHistoryRepository interface {
	Append(ctx context.Context, entry *models.EscalationHistory) error
	ListByAlert(ctx context.Context, alertID string) ([]*models.EscalationHistory, error)
}

// NotificationChannelRepository defines channel data access methods.
type NotificationChannelRepository interface {
	Create(ctx context.Context, channel *models.NotificationChannel) error
	GetByID(ctx context.Context, id int64) (*models.NotificationChannel, error)
	GetAll(ctx context.Context) ([]*models.NotificationChannel, error)
	Update(ctx context.Context, channel *models.NotificationChannel) error
	Delete(ctx context.Context, id int64) error
}

// NotificationLogFilter narrows notification log queries.
type NotificationLogFilter struct {
	AlertID   string
	ChannelID int64
	Status    models.NotificationStatus
	Limit     int
	Offset    int
}

// NotificationLogRepository defines delivery audit data access
// methods. Only status, retries, response and error are ever updated.
type NotificationLogRepository interface {
	Create(ctx context.Context, log *models.NotificationLog) error
	GetByID(ctx context.Context, id string) (*models.NotificationLog, error)
	List(ctx context.Context, filter NotificationLogFilter) ([]*models.NotificationLog, error)
	UpdateDelivery(ctx context.Context, id string, status models.NotificationStatus, responseCode int, retries int, errMsg string, sentAt *time.Time) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SilenceWindowRepository defines silence window data access methods.
type SilenceWindowRepository interface {
	Create(ctx context.Context, window *models.SilenceWindow) error
	GetAll(ctx context.Context) ([]*models.SilenceWindow, error)
	GetEnabled(ctx context.Context) ([]*models.SilenceWindow, error)
	Update(ctx context.Context, window *models.SilenceWindow) error
	Delete(ctx context.Context, id int64) error
}

// RemediationTaskRepository defines remediation task data access
// methods. Command executions are appended, never rewritten.
type RemediationTaskRepository interface {
	Create(ctx context.Context, task *models.RemediationTask) error
	GetByID(ctx context.Context, id string) (*models.RemediationTask, error)
	List(ctx context.Context, status models.RemediationStatus, limit, offset int) ([]*models.RemediationTask, error)
	ListByAlert(ctx context.Context, alertID string) ([]*models.RemediationTask, error)
	UpdateStatus(ctx context.Context, id string, status models.RemediationStatus, errMsg string) error
	SetApproval(ctx context.Context, id string, status models.RemediationStatus, approvedBy string, approvedAt time.Time) error
	IncrementRetry(ctx context.Context, id string) error
	AppendExecution(ctx context.Context, exec *models.CommandExecution) error
	ListExecutions(ctx context.Context, taskID string) ([]models.CommandExecution, error)
}

// OnCallRepository defines on-call schedule data access methods.
type OnCallRepository interface {
	Create(ctx context.Context, schedule *models.OnCallSchedule) error
	GetAll(ctx context.Context) ([]*models.OnCallSchedule, error)
	ListByGroup(ctx context.Context, groupID string) ([]*models.OnCallSchedule, error)
	ListActiveAt(ctx context.Context, groupID string, at time.Time) ([]*models.OnCallSchedule, error)
	Delete(ctx context.Context, id int64) error
}
