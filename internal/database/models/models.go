package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Severity levels an alert can carry. Escalation only ever moves
// upward through this ordering.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for escalation comparisons.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
}

// Above reports whether s is a strictly higher severity than other.
func (s Severity) Above(other Severity) bool {
	return severityRank[s] > severityRank[other]
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ConditionType selects which signal source a rule evaluates against.
type ConditionType string

const (
	ConditionMetric      ConditionType = "metric"
	ConditionLogKeyword  ConditionType = "log_keyword"
	ConditionDBThreshold ConditionType = "db_threshold"
)

// AlertRule defines a monitored condition. Rules are operator-owned;
// the engine only writes last_evaluated_at.
type AlertRule struct {
	ID               int64          `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	Target           string         `db:"target" json:"target"`
	ConditionType    ConditionType  `db:"condition_type" json:"condition_type"`
	ConditionExpr    string         `db:"condition_expr" json:"condition_expr"`
	Operator         string         `db:"operator" json:"operator"`
	Threshold        float64        `db:"threshold" json:"threshold"`
	WindowSeconds    int            `db:"window_seconds" json:"window_seconds"`
	CooldownSeconds  int            `db:"cooldown_seconds" json:"cooldown_seconds"`
	Severity         Severity       `db:"severity" json:"severity"`
	ChannelIDs       JSONInt64s     `db:"channel_ids" json:"channel_ids"`
	MessageTemplate  sql.NullString `db:"message_template" json:"message_template,omitempty"`
	Enabled          bool           `db:"enabled" json:"enabled"`
	LastEvaluatedAt  *time.Time     `db:"last_evaluated_at" json:"last_evaluated_at,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// EvaluationWindow returns the rule's evaluation window as a duration.
func (r *AlertRule) EvaluationWindow() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Cooldown returns the rule's notification cooldown as a duration.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertFiring       AlertStatus = "firing"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert is a deduplicated incident. At most one alert per fingerprint
// may be open (firing or acknowledged) at a time.
type Alert struct {
	ID              string      `db:"id" json:"id"`
	RuleID          int64       `db:"rule_id" json:"rule_id"`
	Fingerprint     string      `db:"fingerprint" json:"fingerprint"`
	Target          string      `db:"target" json:"target"`
	Status          AlertStatus `db:"status" json:"status"`
	Severity        Severity    `db:"severity" json:"severity"`
	Title           string      `db:"title" json:"title"`
	Message         string      `db:"message" json:"message"`
	ObservedValue   float64     `db:"observed_value" json:"observed_value"`
	FirstFiredAt    time.Time   `db:"first_fired_at" json:"first_fired_at"`
	LastFiredAt     time.Time   `db:"last_fired_at" json:"last_fired_at"`
	OccurrenceCount int64       `db:"occurrence_count" json:"occurrence_count"`
	AcknowledgedBy  sql.NullString `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time  `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// Open reports whether the alert still participates in escalation.
func (a *Alert) Open() bool {
	return a.Status == AlertFiring || a.Status == AlertAcknowledged
}

// EscalationRule attaches ordered escalation levels to an alert rule.
type EscalationRule struct {
	ID          int64             `db:"id" json:"id"`
	AlertRuleID int64             `db:"alert_rule_id" json:"alert_rule_id"`
	Levels      []EscalationLevel `db:"-" json:"levels"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// EscalationLevel is one tier of an escalation ladder. Levels must be
// strictly increasing in both Level and DelayMinutes.
type EscalationLevel struct {
	ID               int64    `db:"id" json:"id"`
	EscalationRuleID int64    `db:"escalation_rule_id" json:"escalation_rule_id"`
	Level            int      `db:"level" json:"level"`
	DelayMinutes     int      `db:"delay_minutes" json:"delay_minutes"`
	TargetSeverity   Severity `db:"target_severity" json:"target_severity"`
}

// Delay returns the level's delay from first_fired_at.
func (l EscalationLevel) Delay() time.Duration {
	return time.Duration(l.DelayMinutes) * time.Minute
}

// EscalationHistory is the append-only audit record of severity
// transitions. Rows are never updated or deleted.
type EscalationHistory struct {
	ID                int64     `db:"id" json:"id"`
	AlertID           string    `db:"alert_id" json:"alert_id"`
	FromSeverity      Severity  `db:"from_severity" json:"from_severity"`
	ToSeverity        Severity  `db:"to_severity" json:"to_severity"`
	Level             int       `db:"level" json:"level"`
	EscalatedBySystem bool      `db:"escalated_by_system" json:"escalated_by_system"`
	EscalatedBy       string    `db:"escalated_by" json:"escalated_by,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// ChannelType identifies the delivery mechanism of a channel.
type ChannelType string

const (
	ChannelWebhook  ChannelType = "webhook"
	ChannelEmail    ChannelType = "email"
	ChannelDingTalk ChannelType = "dingtalk"
	ChannelWeCom    ChannelType = "wecom"
	ChannelSlack    ChannelType = "slack"
)

// NotificationChannel is a configured delivery endpoint. Config holds
// type-specific settings (url, recipients, tokens) as JSON.
type NotificationChannel struct {
	ID        int64       `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Type      ChannelType `db:"type" json:"type"`
	Config    JSONMap     `db:"config" json:"config"`
	Enabled   bool        `db:"enabled" json:"enabled"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// NotificationStatus is the delivery state of a notification attempt.
type NotificationStatus string

const (
	NotificationPending    NotificationStatus = "pending"
	NotificationSent       NotificationStatus = "sent"
	NotificationFailed     NotificationStatus = "failed"
	NotificationSuppressed NotificationStatus = "suppressed"
)

// NotificationLog records one delivery attempt, including suppressed
// ones, for the audit view. AlertID is null for channel test sends.
type NotificationLog struct {
	ID           string             `db:"id" json:"id"`
	AlertID      sql.NullString     `db:"alert_id" json:"alert_id,omitempty"`
	ChannelID    int64              `db:"channel_id" json:"channel_id"`
	Status       NotificationStatus `db:"status" json:"status"`
	Message      string             `db:"message" json:"message"`
	ResponseCode sql.NullInt64      `db:"response_code" json:"response_code,omitempty"`
	Retries      int                `db:"retries" json:"retries"`
	Error        sql.NullString     `db:"error" json:"error,omitempty"`
	SentAt       *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
}

// SilenceWindow is a recurring daily window during which dispatch is
// suppressed but still logged.
type SilenceWindow struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartTime string    `db:"start_time" json:"start_time"` // "HH:MM"
	EndTime   string    `db:"end_time" json:"end_time"`     // "HH:MM"
	Enabled   bool      `db:"enabled" json:"enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RiskLevel classifies how destructive a runbook is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// RemediationStatus is the lifecycle state of a remediation task.
type RemediationStatus string

const (
	RemediationPending   RemediationStatus = "pending"
	RemediationApproved  RemediationStatus = "approved"
	RemediationRejected  RemediationStatus = "rejected"
	RemediationExecuting RemediationStatus = "executing"
	RemediationSuccess   RemediationStatus = "success"
	RemediationFailed    RemediationStatus = "failed"
)

// Terminal reports whether the task can no longer change state
// (except failed, which permits a single retry).
func (s RemediationStatus) Terminal() bool {
	return s == RemediationRejected || s == RemediationSuccess
}

// RemediationTask is one diagnosis-driven repair attempt against a host.
type RemediationTask struct {
	ID          string            `db:"id" json:"id"`
	AlertID     string            `db:"alert_id" json:"alert_id"`
	Host        string            `db:"host" json:"host"`
	Runbook     string            `db:"runbook" json:"runbook"`
	Diagnosis   string            `db:"diagnosis" json:"diagnosis"`
	InsightType string            `db:"insight_type" json:"insight_type"`
	RiskLevel   RiskLevel         `db:"risk_level" json:"risk_level"`
	Status      RemediationStatus `db:"status" json:"status"`
	Error       sql.NullString    `db:"error" json:"error,omitempty"`
	ApprovedBy  sql.NullString    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt  *time.Time        `db:"approved_at" json:"approved_at,omitempty"`
	RetryCount  int               `db:"retry_count" json:"retry_count"`
	Executions  []CommandExecution `db:"-" json:"executions,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// CommandExecution records one command run during remediation.
type CommandExecution struct {
	ID         int64     `db:"id" json:"id"`
	TaskID     string    `db:"task_id" json:"task_id"`
	Seq        int       `db:"seq" json:"seq"`
	Command    string    `db:"command" json:"command"`
	ExitCode   int       `db:"exit_code" json:"exit_code"`
	Output     string    `db:"output" json:"output"`
	ExecutedAt time.Time `db:"executed_at" json:"executed_at"`
}

// OnCallSchedule assigns a user to a group's on-call rotation for a
// date range. Overlaps within a group are flagged, not rejected.
type OnCallSchedule struct {
	ID        int64     `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// JSONMap stores a JSON object in a TEXT column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *JSONMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// JSONInt64s stores an int64 slice in a TEXT column.
type JSONInt64s []int64

func (s JSONInt64s) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func (s *JSONInt64s) Scan(src interface{}) error {
	return scanJSON(src, s)
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return json.Unmarshal([]byte(stringify(v)), dst)
	}
}

func stringify(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
