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

// AlertRuleRepository implements repositories.AlertRuleRepository
type AlertRuleRepository struct {
	db *sqlx.DB
}

// NewAlertRuleRepository creates a new AlertRuleRepository
func NewAlertRuleRepository(db *sqlx.DB) repositories.AlertRuleRepository {
	return &AlertRuleRepository{db: db}
}

const alertRuleColumns = `id, name, target, condition_type, condition_expr, operator, threshold,
	window_seconds, cooldown_seconds, severity, channel_ids, message_template, enabled,
	last_evaluated_at, created_at, updated_at`

// Create creates a new alert rule
func (r *AlertRuleRepository) Create(ctx context.Context, rule *models.AlertRule) error {
	query := `
		INSERT INTO alert_rules (name, target, condition_type, condition_expr, operator, threshold,
			window_seconds, cooldown_seconds, severity, channel_ids, message_template, enabled,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		rule.Target,
		rule.ConditionType,
		rule.ConditionExpr,
		rule.Operator,
		rule.Threshold,
		rule.WindowSeconds,
		rule.CooldownSeconds,
		rule.Severity,
		rule.ChannelIDs,
		rule.MessageTemplate,
		rule.Enabled,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted alert rule ID: %w", err)
	}

	rule.ID = id
	rule.CreatedAt = now
	rule.UpdatedAt = now

	return nil
}

// GetByID retrieves an alert rule by ID
func (r *AlertRuleRepository) GetByID(ctx context.Context, id int64) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	query := fmt.Sprintf(`SELECT %s FROM alert_rules WHERE id = ?`, alertRuleColumns)

	err := r.db.GetContext(ctx, rule, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert rule not found with ID: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}

	return rule, nil
}

// GetAll retrieves all alert rules
func (r *AlertRuleRepository) GetAll(ctx context.Context) ([]*models.AlertRule, error) {
	var rules []*models.AlertRule
	query := fmt.Sprintf(`SELECT %s FROM alert_rules ORDER BY id`, alertRuleColumns)

	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}

	return rules, nil
}

// GetEnabled retrieves all enabled alert rules
func (r *AlertRuleRepository) GetEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	var rules []*models.AlertRule
	query := fmt.Sprintf(`SELECT %s FROM alert_rules WHERE enabled = 1 ORDER BY id`, alertRuleColumns)

	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list enabled alert rules: %w", err)
	}

	return rules, nil
}

// Update updates an alert rule
func (r *AlertRuleRepository) Update(ctx context.Context, rule *models.AlertRule) error {
	query := `
		UPDATE alert_rules
		SET name = ?, target = ?, condition_type = ?, condition_expr = ?, operator = ?,
			threshold = ?, window_seconds = ?, cooldown_seconds = ?, severity = ?,
			channel_ids = ?, message_template = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		rule.Target,
		rule.ConditionType,
		rule.ConditionExpr,
		rule.Operator,
		rule.Threshold,
		rule.WindowSeconds,
		rule.CooldownSeconds,
		rule.Severity,
		rule.ChannelIDs,
		rule.MessageTemplate,
		rule.Enabled,
		now,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert rule not found with ID: %d", rule.ID)
	}

	rule.UpdatedAt = now
	return nil
}

// Delete deletes an alert rule
func (r *AlertRuleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert rule not found with ID: %d", id)
	}

	return nil
}

// TouchEvaluated records that the rule was evaluated at the given time.
// This is the only column the evaluation loop writes.
func (r *AlertRuleRepository) TouchEvaluated(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alert_rules SET last_evaluated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch alert rule %d: %w", id, err)
	}
	return nil
}
