package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
)

// NotificationChannelRepository implements repositories.NotificationChannelRepository
type NotificationChannelRepository struct {
	db *sqlx.DB
}

// NewNotificationChannelRepository creates a new NotificationChannelRepository
func NewNotificationChannelRepository(db *sqlx.DB) repositories.NotificationChannelRepository {
	return &NotificationChannelRepository{db: db}
}

// Create creates a new notification channel
func (r *NotificationChannelRepository) Create(ctx context.Context, channel *models.NotificationChannel) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_channels (name, type, config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		channel.Name, channel.Type, channel.Config, channel.Enabled, now, now)
	if err != nil {
		return fmt.Errorf("failed to create notification channel: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted channel ID: %w", err)
	}

	channel.ID = id
	channel.CreatedAt = now
	channel.UpdatedAt = now
	return nil
}

// GetByID retrieves a notification channel by ID
func (r *NotificationChannelRepository) GetByID(ctx context.Context, id int64) (*models.NotificationChannel, error) {
	channel := &models.NotificationChannel{}
	err := r.db.GetContext(ctx, channel,
		`SELECT id, name, type, config, enabled, created_at, updated_at
		 FROM notification_channels WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("notification channel not found with ID: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification channel: %w", err)
	}
	return channel, nil
}

// GetAll retrieves all notification channels
func (r *NotificationChannelRepository) GetAll(ctx context.Context) ([]*models.NotificationChannel, error) {
	var channels []*models.NotificationChannel
	err := r.db.SelectContext(ctx, &channels,
		`SELECT id, name, type, config, enabled, created_at, updated_at
		 FROM notification_channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification channels: %w", err)
	}
	return channels, nil
}

// Update updates a notification channel
func (r *NotificationChannelRepository) Update(ctx context.Context, channel *models.NotificationChannel) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		`UPDATE notification_channels SET name = ?, type = ?, config = ?, enabled = ?, updated_at = ?
		 WHERE id = ?`,
		channel.Name, channel.Type, channel.Config, channel.Enabled, now, channel.ID)
	if err != nil {
		return fmt.Errorf("failed to update notification channel: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification channel not found with ID: %d", channel.ID)
	}

	channel.UpdatedAt = now
	return nil
}

// Delete deletes a notification channel
func (r *NotificationChannelRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notification_channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification channel: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification channel not found with ID: %d", id)
	}
	return nil
}

// NotificationLogRepository implements repositories.NotificationLogRepository
type NotificationLogRepository struct {
	db *sqlx.DB
}

// NewNotificationLogRepository creates a new NotificationLogRepository
func NewNotificationLogRepository(db *sqlx.DB) repositories.NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

const notificationLogColumns = `id, alert_id, channel_id, status, message, response_code, retries, error, sent_at, created_at`

// Create creates a new notification log entry
func (r *NotificationLogRepository) Create(ctx context.Context, log *models.NotificationLog) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_logs (id, alert_id, channel_id, status, message, response_code, retries, error, sent_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.AlertID, log.ChannelID, log.Status, log.Message,
		log.ResponseCode, log.Retries, log.Error, log.SentAt, now)
	if err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}

	log.CreatedAt = now
	return nil
}

// GetByID retrieves a notification log entry by ID
func (r *NotificationLogRepository) GetByID(ctx context.Context, id string) (*models.NotificationLog, error) {
	log := &models.NotificationLog{}
	query := fmt.Sprintf(`SELECT %s FROM notification_logs WHERE id = ?`, notificationLogColumns)

	err := r.db.GetContext(ctx, log, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("notification log not found with ID: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification log: %w", err)
	}
	return log, nil
}

// List retrieves notification log entries matching the filter, newest first.
func (r *NotificationLogRepository) List(ctx context.Context, filter repositories.NotificationLogFilter) ([]*models.NotificationLog, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_logs WHERE 1=1`, notificationLogColumns)
	args := []interface{}{}

	if filter.AlertID != "" {
		query += ` AND alert_id = ?`
		args = append(args, filter.AlertID)
	}
	if filter.ChannelID != 0 {
		query += ` AND channel_id = ?`
		args = append(args, filter.ChannelID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	var logs []*models.NotificationLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	return logs, nil
}

// UpdateDelivery records the outcome of a delivery attempt.
func (r *NotificationLogRepository) UpdateDelivery(ctx context.Context, id string, status models.NotificationStatus, responseCode int, retries int, errMsg string, sentAt *time.Time) error {
	var code sql.NullInt64
	if responseCode != 0 {
		code = sql.NullInt64{Int64: int64(responseCode), Valid: true}
	}
	var errCol sql.NullString
	if errMsg != "" {
		errCol = sql.NullString{String: errMsg, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE notification_logs SET status = ?, response_code = ?, retries = ?, error = ?, sent_at = ?
		 WHERE id = ?`,
		status, code, retries, errCol, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to update notification log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification log not found with ID: %s", id)
	}
	return nil
}

// DeleteBefore prunes notification logs older than the cutoff.
func (r *NotificationLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notification logs: %w", err)
	}
	return result.RowsAffected()
}

// SilenceWindowRepository implements repositories.SilenceWindowRepository
type SilenceWindowRepository struct {
	db *sqlx.DB
}

// NewSilenceWindowRepository creates a new SilenceWindowRepository
func NewSilenceWindowRepository(db *sqlx.DB) repositories.SilenceWindowRepository {
	return &SilenceWindowRepository{db: db}
}

// Create creates a new silence window
func (r *SilenceWindowRepository) Create(ctx context.Context, window *models.SilenceWindow) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO silence_windows (name, start_time, end_time, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		window.Name, window.StartTime, window.EndTime, window.Enabled, now)
	if err != nil {
		return fmt.Errorf("failed to create silence window: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted window ID: %w", err)
	}

	window.ID = id
	window.CreatedAt = now
	return nil
}

// GetAll retrieves all silence windows
func (r *SilenceWindowRepository) GetAll(ctx context.Context) ([]*models.SilenceWindow, error) {
	var windows []*models.SilenceWindow
	err := r.db.SelectContext(ctx, &windows,
		`SELECT id, name, start_time, end_time, enabled, created_at FROM silence_windows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list silence windows: %w", err)
	}
	return windows, nil
}

// GetEnabled retrieves enabled silence windows
func (r *SilenceWindowRepository) GetEnabled(ctx context.Context) ([]*models.SilenceWindow, error) {
	var windows []*models.SilenceWindow
	err := r.db.SelectContext(ctx, &windows,
		`SELECT id, name, start_time, end_time, enabled, created_at FROM silence_windows WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled silence windows: %w", err)
	}
	return windows, nil
}

// Update updates a silence window
func (r *SilenceWindowRepository) Update(ctx context.Context, window *models.SilenceWindow) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE silence_windows SET name = ?, start_time = ?, end_time = ?, enabled = ? WHERE id = ?`,
		window.Name, window.StartTime, window.EndTime, window.Enabled, window.ID)
	if err != nil {
		return fmt.Errorf("failed to update silence window: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("silence window not found with ID: %d", window.ID)
	}
	return nil
}

// Delete deletes a silence window
func (r *SilenceWindowRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM silence_windows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete silence window: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("silence window not found with ID: %d", id)
	}
	return nil
}
