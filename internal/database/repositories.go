package database

import (
	"github.com/jmoiron/sqlx"

	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	"github.com/opswatch/opswatch-backend-go/internal/database/sqlite"
)

// Repositories holds all repository instances
type Repositories struct {
	AlertRule         repositories.AlertRuleRepository
	Alert             repositories.AlertRepository
	EscalationRule    repositories.EscalationRuleRepository
	EscalationHistory repositories.EscalationHistoryRepository
	Channel           repositories.NotificationChannelRepository
	NotificationLog   repositories.NotificationLogRepository
	SilenceWindow     repositories.SilenceWindowRepository
	Remediation       repositories.RemediationTaskRepository
	OnCall            repositories.OnCallRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		AlertRule:         sqlite.NewAlertRuleRepository(db),
		Alert:             sqlite.NewAlertRepository(db),
		EscalationRule:    sqlite.NewEscalationRuleRepository(db),
		EscalationHistory: sqlite.NewEscalationHistoryRepository(db),
		Channel:           sqlite.NewNotificationChannelRepository(db),
		NotificationLog:   sqlite.NewNotificationLogRepository(db),
		SilenceWindow:     sqlite.NewSilenceWindowRepository(db),
		Remediation:       sqlite.NewRemediationTaskRepository(db),
		OnCall:            sqlite.NewOnCallRepository(db),
	}
}
