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

// EscalationRuleRepository implements repositories.EscalationRuleRepository
type EscalationRuleRepository struct {
	db *sqlx.DB
}

// NewEscalationRuleRepository creates a new EscalationRuleRepository
func NewEscalationRuleRepository(db *sqlx.DB) repositories.EscalationRuleRepository {
	return &EscalationRuleRepository{db: db}
}

// Create stores an escalation rule together with its levels.
func (r *EscalationRuleRepository) Create(ctx context.Context, rule *models.EscalationRule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO escalation_rules (alert_rule_id, created_at, updated_at) VALUES (?, ?, ?)`,
		rule.AlertRuleID, now, now)
	if err != nil {
		return fmt.Errorf("failed to create escalation rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted escalation rule ID: %w", err)
	}
	rule.ID = id

	if err := insertLevels(ctx, tx, id, rule.Levels); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit escalation rule: %w", err)
	}

	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

func insertLevels(ctx context.Context, tx *sqlx.Tx, ruleID int64, levels []models.EscalationLevel) error {
	for i := range levels {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO escalation_levels (escalation_rule_id, level, delay_minutes, target_severity)
			 VALUES (?, ?, ?, ?)`,
			ruleID, levels[i].Level, levels[i].DelayMinutes, levels[i].TargetSeverity)
		if err != nil {
			return fmt.Errorf("failed to create escalation level %d: %w", levels[i].Level, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get inserted level ID: %w", err)
		}
		levels[i].ID = id
		levels[i].EscalationRuleID = ruleID
	}
	return nil
}

// GetByID retrieves an escalation rule with its levels
func (r *EscalationRuleRepository) GetByID(ctx context.Context, id int64) (*models.EscalationRule, error) {
	rule := &models.EscalationRule{}
	err := r.db.GetContext(ctx, rule,
		`SELECT id, alert_rule_id, created_at, updated_at FROM escalation_rules WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("escalation rule not found with ID: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation rule: %w", err)
	}

	if err := r.loadLevels(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// GetByAlertRuleID retrieves the escalation rule attached to an alert
// rule, or nil when the rule has no escalation ladder.
func (r *EscalationRuleRepository) GetByAlertRuleID(ctx context.Context, alertRuleID int64) (*models.EscalationRule, error) {
	rule := &models.EscalationRule{}
	err := r.db.GetContext(ctx, rule,
		`SELECT id, alert_rule_id, created_at, updated_at FROM escalation_rules WHERE alert_rule_id = ?`,
		alertRuleID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation rule: %w", err)
	}

	if err := r.loadLevels(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// GetAll retrieves all escalation rules with their levels
func (r *EscalationRuleRepository) GetAll(ctx context.Context) ([]*models.EscalationRule, error) {
	var rules []*models.EscalationRule
	err := r.db.SelectContext(ctx, &rules,
		`SELECT id, alert_rule_id, created_at, updated_at FROM escalation_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation rules: %w", err)
	}

	for _, rule := range rules {
		if err := r.loadLevels(ctx, rule); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

// Update replaces the rule's levels.
func (r *EscalationRuleRepository) Update(ctx context.Context, rule *models.EscalationRule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`UPDATE escalation_rules SET updated_at = ? WHERE id = ?`, now, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update escalation rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("escalation rule not found with ID: %d", rule.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM escalation_levels WHERE escalation_rule_id = ?`, rule.ID); err != nil {
		return fmt.Errorf("failed to clear escalation levels: %w", err)
	}

	if err := insertLevels(ctx, tx, rule.ID, rule.Levels); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit escalation rule: %w", err)
	}

	rule.UpdatedAt = now
	return nil
}

// Delete deletes an escalation rule and its levels
func (r *EscalationRuleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM escalation_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete escalation rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("escalation rule not found with ID: %d", id)
	}

	return nil
}

func (r *EscalationRuleRepository) loadLevels(ctx context.Context, rule *models.EscalationRule) error {
	err := r.db.SelectContext(ctx, &rule.Levels,
		`SELECT id, escalation_rule_id, level, delay_minutes, target_severity
		 FROM escalation_levels WHERE escalation_rule_id = ? ORDER BY level`, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to load escalation levels: %w", err)
	}
	return nil
}

// EscalationHistoryRepository implements repositories.EscalationHistoryRepository
type EscalationHistoryRepository struct {
	db *sqlx.DB
}

// NewEscalationHistoryRepository creates a new EscalationHistoryRepository
func NewEscalationHistoryRepository(db *sqlx.DB) repositories.EscalationHistoryRepository {
	return &EscalationHistoryRepository{db: db}
}

// Append adds an escalation history entry. Entries are never updated.
func (r *EscalationHistoryRepository) Append(ctx context.Context, entry *models.EscalationHistory) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO escalation_history (alert_id, from_severity, to_severity, level, escalated_by_system, escalated_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.AlertID, entry.FromSeverity, entry.ToSeverity, entry.Level,
		entry.EscalatedBySystem, entry.EscalatedBy, now)
	if err != nil {
		return fmt.Errorf("failed to append escalation history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted history ID: %w", err)
	}

	entry.ID = id
	entry.CreatedAt = now
	return nil
}

// ListByAlert retrieves escalation history for an alert in order
func (r *EscalationHistoryRepository) ListByAlert(ctx context.Context, alertID string) ([]*models.EscalationHistory, error) {
	var entries []*models.EscalationHistory
	err := r.db.SelectContext(ctx, &entries,
		`SELECT id, alert_id, from_severity, to_severity, level, escalated_by_system, escalated_by, created_at
		 FROM escalation_history WHERE alert_id = ? ORDER BY created_at, id`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation history: %w", err)
	}
	return entries, nil
}
