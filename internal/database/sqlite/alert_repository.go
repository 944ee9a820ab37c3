package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
)

// AlertRepository implements repositories.AlertRepository
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *sqlx.DB) repositories.AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, rule_id, fingerprint, target, status, severity, title, message,
	observed_value, first_fired_at, last_fired_at, occurrence_count, acknowledged_by,
	resolved_at, created_at, updated_at`

// Create inserts a new alert. The partial unique index on open
// fingerprints rejects a second firing alert for the same condition.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (id, rule_id, fingerprint, target, status, severity, title, message,
			observed_value, first_fired_at, last_fired_at, occurrence_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.RuleID,
		alert.Fingerprint,
		alert.Target,
		alert.Status,
		alert.Severity,
		alert.Title,
		alert.Message,
		alert.ObservedValue,
		alert.FirstFiredAt,
		alert.LastFiredAt,
		alert.OccurrenceCount,
		now,
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("open alert already exists for fingerprint %s", alert.Fingerprint)
		}
		return fmt.Errorf("failed to create alert: %w", err)
	}

	alert.CreatedAt = now
	alert.UpdatedAt = now
	return nil
}

// GetByID retrieves an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	alert := &models.Alert{}
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE id = ?`, alertColumns)

	err := r.db.GetContext(ctx, alert, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert not found with ID: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// GetOpenByFingerprint returns the open (firing or acknowledged) alert
// for a fingerprint, or nil when none exists.
func (r *AlertRepository) GetOpenByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error) {
	alert := &models.Alert{}
	query := fmt.Sprintf(
		`SELECT %s FROM alerts WHERE fingerprint = ? AND status != 'resolved'`, alertColumns)

	err := r.db.GetContext(ctx, alert, query, fingerprint)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open alert: %w", err)
	}

	return alert, nil
}

// List retrieves alerts matching the filter, newest first.
func (r *AlertRepository) List(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE 1=1`, alertColumns)
	args := []interface{}{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, filter.Severity)
	}
	if filter.RuleID != 0 {
		query += ` AND rule_id = ?`
		args = append(args, filter.RuleID)
	}

	query += ` ORDER BY last_fired_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	var alerts []*models.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	return alerts, nil
}

// RecordOccurrence increments the occurrence counter and refreshes
// last_fired_at for a repeated violation.
func (r *AlertRepository) RecordOccurrence(ctx context.Context, id string, observed float64, at time.Time) error {
	query := `
		UPDATE alerts
		SET occurrence_count = occurrence_count + 1, observed_value = ?, last_fired_at = ?, updated_at = ?
		WHERE id = ? AND status != 'resolved'
	`

	result, err := r.db.ExecContext(ctx, query, observed, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to record occurrence: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no open alert with ID: %s", id)
	}

	return nil
}

// UpdateSeverity sets the alert's current severity.
func (r *AlertRepository) UpdateSeverity(ctx context.Context, id string, severity models.Severity) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET severity = ?, updated_at = ? WHERE id = ?`,
		severity, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update alert severity: %w", err)
	}
	return nil
}

// Acknowledge marks a firing alert as acknowledged by a user.
func (r *AlertRepository) Acknowledge(ctx context.Context, id, user string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, acknowledged_by = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.AlertAcknowledged, user, time.Now(), id, models.AlertFiring)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %s is not firing", id)
	}

	return nil
}

// Resolve soft-closes an alert. Resolving an already resolved alert is
// a no-op so timer sweeps and operators cannot race into an error.
func (r *AlertRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, resolved_at = ?, updated_at = ? WHERE id = ? AND status != ?`,
		models.AlertResolved, at, time.Now(), id, models.AlertResolved)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return nil
}

// ListResolvedByFingerprint returns prior resolved incidents for the
// same condition, newest first. Used for diagnosis context.
func (r *AlertRepository) ListResolvedByFingerprint(ctx context.Context, fingerprint string, limit int) ([]*models.Alert, error) {
	var alerts []*models.Alert
	query := fmt.Sprintf(
		`SELECT %s FROM alerts WHERE fingerprint = ? AND status = 'resolved' ORDER BY resolved_at DESC LIMIT ?`,
		alertColumns)

	if err := r.db.SelectContext(ctx, &alerts, query, fingerprint, limit); err != nil {
		return nil, fmt.Errorf("failed to list resolved alerts: %w", err)
	}

	return alerts, nil
}

// DeleteResolvedBefore prunes resolved alerts older than the cutoff.
func (r *AlertRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE status = 'resolved' AND resolved_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune resolved alerts: %w", err)
	}
	return result.RowsAffected()
}
