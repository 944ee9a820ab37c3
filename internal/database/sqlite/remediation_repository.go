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

// RemediationTaskRepository implements repositories.RemediationTaskRepository
type RemediationTaskRepository struct {
	db *sqlx.DB
}

// NewRemediationTaskRepository creates a new RemediationTaskRepository
func NewRemediationTaskRepository(db *sqlx.DB) repositories.RemediationTaskRepository {
	return &RemediationTaskRepository{db: db}
}

const remediationColumns = `id, alert_id, host, runbook, diagnosis, insight_type, risk_level,
	status, error, approved_by, approved_at, retry_count, created_at, updated_at`

// Create creates a new remediation task
func (r *RemediationTaskRepository) Create(ctx context.Context, task *models.RemediationTask) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO remediation_tasks (id, alert_id, host, runbook, diagnosis, insight_type,
			risk_level, status, retry_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.AlertID, task.Host, task.Runbook, task.Diagnosis, task.InsightType,
		task.RiskLevel, task.Status, task.RetryCount, now, now)
	if err != nil {
		return fmt.Errorf("failed to create remediation task: %w", err)
	}

	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// GetByID retrieves a remediation task with its command executions
func (r *RemediationTaskRepository) GetByID(ctx context.Context, id string) (*models.RemediationTask, error) {
	task := &models.RemediationTask{}
	query := fmt.Sprintf(`SELECT %s FROM remediation_tasks WHERE id = ?`, remediationColumns)

	err := r.db.GetContext(ctx, task, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("remediation task not found with ID: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get remediation task: %w", err)
	}

	executions, err := r.ListExecutions(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Executions = executions

	return task, nil
}

// List retrieves remediation tasks, optionally filtered by status, newest first.
func (r *RemediationTaskRepository) List(ctx context.Context, status models.RemediationStatus, limit, offset int) ([]*models.RemediationTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM remediation_tasks WHERE 1=1`, remediationColumns)
	args := []interface{}{}

	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}

	query += ` ORDER BY created_at DESC`

	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	var tasks []*models.RemediationTask
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list remediation tasks: %w", err)
	}
	return tasks, nil
}

// ListByAlert retrieves remediation tasks for an alert
func (r *RemediationTaskRepository) ListByAlert(ctx context.Context, alertID string) ([]*models.RemediationTask, error) {
	var tasks []*models.RemediationTask
	query := fmt.Sprintf(
		`SELECT %s FROM remediation_tasks WHERE alert_id = ? ORDER BY created_at DESC`, remediationColumns)

	if err := r.db.SelectContext(ctx, &tasks, query, alertID); err != nil {
		return nil, fmt.Errorf("failed to list remediation tasks for alert: %w", err)
	}
	return tasks, nil
}

// UpdateStatus transitions a task's status and records its error, if any.
func (r *RemediationTaskRepository) UpdateStatus(ctx context.Context, id string, status models.RemediationStatus, errMsg string) error {
	var errCol sql.NullString
	if errMsg != "" {
		errCol = sql.NullString{String: errMsg, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE remediation_tasks SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errCol, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update remediation task status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("remediation task not found with ID: %s", id)
	}
	return nil
}

// SetApproval records an approval or rejection decision. The guard on
// status = pending makes a double decision a visible error rather than
// a silent overwrite.
func (r *RemediationTaskRepository) SetApproval(ctx context.Context, id string, status models.RemediationStatus, approvedBy string, approvedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE remediation_tasks SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, approvedBy, approvedAt, time.Now(), id, models.RemediationPending)
	if err != nil {
		return fmt.Errorf("failed to record approval: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("remediation task %s is not pending", id)
	}
	return nil
}

// IncrementRetry bumps the retry counter.
func (r *RemediationTaskRepository) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE remediation_tasks SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

// AppendExecution records one command run.
func (r *RemediationTaskRepository) AppendExecution(ctx context.Context, exec *models.CommandExecution) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO command_executions (task_id, seq, command, exit_code, output, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		exec.TaskID, exec.Seq, exec.Command, exec.ExitCode, exec.Output, exec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to append command execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted execution ID: %w", err)
	}
	exec.ID = id
	return nil
}

// ListExecutions retrieves command executions for a task in run order
func (r *RemediationTaskRepository) ListExecutions(ctx context.Context, taskID string) ([]models.CommandExecution, error) {
	var executions []models.CommandExecution
	err := r.db.SelectContext(ctx, &executions,
		`SELECT id, task_id, seq, command, exit_code, output, executed_at
		 FROM command_executions WHERE task_id = ? ORDER BY executed_at, seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list command executions: %w", err)
	}
	return executions, nil
}
