package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
)

// OnCallRepository implements repositories.OnCallRepository
type OnCallRepository struct {
	db *sqlx.DB
}

// NewOnCallRepository creates a new OnCallRepository
func NewOnCallRepository(db *sqlx.DB) repositories.OnCallRepository {
	return &OnCallRepository{db: db}
}

const onCallColumns = `id, group_id, user_id, start_date, end_date, active, created_at`

// Create creates a new on-call schedule entry
func (r *OnCallRepository) Create(ctx context.Context, schedule *models.OnCallSchedule) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO oncall_schedules (group_id, user_id, start_date, end_date, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		schedule.GroupID, schedule.UserID, schedule.StartDate, schedule.EndDate, schedule.Active, now)
	if err != nil {
		return fmt.Errorf("failed to create on-call schedule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted schedule ID: %w", err)
	}

	schedule.ID = id
	schedule.CreatedAt = now
	return nil
}

// GetAll retrieves all on-call schedules
func (r *OnCallRepository) GetAll(ctx context.Context) ([]*models.OnCallSchedule, error) {
	var schedules []*models.OnCallSchedule
	query := fmt.Sprintf(`SELECT %s FROM oncall_schedules ORDER BY group_id, start_date`, onCallColumns)

	if err := r.db.SelectContext(ctx, &schedules, query); err != nil {
		return nil, fmt.Errorf("failed to list on-call schedules: %w", err)
	}
	return schedules, nil
}

// ListByGroup retrieves schedules for a group ordered by start date
func (r *OnCallRepository) ListByGroup(ctx context.Context, groupID string) ([]*models.OnCallSchedule, error) {
	var schedules []*models.OnCallSchedule
	query := fmt.Sprintf(`SELECT %s FROM oncall_schedules WHERE group_id = ? ORDER BY start_date`, onCallColumns)

	if err := r.db.SelectContext(ctx, &schedules, query, groupID); err != nil {
		return nil, fmt.Errorf("failed to list on-call schedules for group: %w", err)
	}
	return schedules, nil
}

// ListActiveAt retrieves active schedules covering the given instant.
func (r *OnCallRepository) ListActiveAt(ctx context.Context, groupID string, at time.Time) ([]*models.OnCallSchedule, error) {
	var schedules []*models.OnCallSchedule
	query := fmt.Sprintf(
		`SELECT %s FROM oncall_schedules
		 WHERE group_id = ? AND active = 1 AND start_date <= ? AND end_date >= ?
		 ORDER BY start_date`, onCallColumns)

	if err := r.db.SelectContext(ctx, &schedules, query, groupID, at, at); err != nil {
		return nil, fmt.Errorf("failed to list active on-call schedules: %w", err)
	}
	return schedules, nil
}

// Delete deletes an on-call schedule
func (r *OnCallRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM oncall_schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete on-call schedule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("on-call schedule not found with ID: %d", id)
	}
	return nil
}
