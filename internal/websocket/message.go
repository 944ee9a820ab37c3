package websocket

import (
	"encoding/json"
	"time"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// Event types pushed to subscribers.
const (
	MessageTypeAlertOpened       = "alert_opened"
	MessageTypeAlertEscalated    = "alert_escalated"
	MessageTypeAlertAcknowledged = "alert_acknowledged"
	MessageTypeAlertResolved     = "alert_resolved"
	MessageTypeNotificationSent  = "notification_sent"
	MessageTypeRemediationUpdate = "remediation_update"
	MessageTypeConnection        = "connection"
)

// Message is one event frame on the wire.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON serializes the message, stamping it with the current time.
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}

// AlertMessage builds an alert lifecycle event.
func AlertMessage(msgType string, alert *models.Alert) Message {
	return Message{
		Type: msgType,
		Data: map[string]interface{}{
			"alert_id":    alert.ID,
			"rule_id":     alert.RuleID,
			"fingerprint": alert.Fingerprint,
			"target":      alert.Target,
			"status":      alert.Status,
			"severity":    alert.Severity,
			"title":       alert.Title,
			"occurrences": alert.OccurrenceCount,
		},
	}
}

// NotificationMessage builds a delivery confirmation event.
func NotificationMessage(logEntry *models.NotificationLog) Message {
	data := map[string]interface{}{
		"log_id":     logEntry.ID,
		"channel_id": logEntry.ChannelID,
		"status":     logEntry.Status,
		"retries":    logEntry.Retries,
	}
	if logEntry.AlertID.Valid {
		data["alert_id"] = logEntry.AlertID.String
	}
	return Message{Type: MessageTypeNotificationSent, Data: data}
}

// RemediationMessage builds a remediation task status event.
func RemediationMessage(task *models.RemediationTask) Message {
	data := map[string]interface{}{
		"task_id":    task.ID,
		"alert_id":   task.AlertID,
		"host":       task.Host,
		"runbook":    task.Runbook,
		"risk_level": task.RiskLevel,
		"status":     task.Status,
	}
	if task.Error.Valid {
		data["error"] = task.Error.String
	}
	return Message{Type: MessageTypeRemediationUpdate, Data: data}
}
