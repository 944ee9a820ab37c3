package remediation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/core/runbooks"
	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

// Config contains orchestrator tuning.
type Config struct {
	Workers        int
	QueueSize      int
	AutoApproveLow bool
	CommandTimeout time.Duration
}

// Observer is notified after a task reaches a new status. Used for
// event broadcasting; may be nil.
type Observer func(task *models.RemediationTask)

// Orchestrator drives remediation tasks through their lifecycle:
// approval gating, safety checks, and fail-fast command execution on
// a bounded worker pool.
type Orchestrator struct {
	tasks    repositories.RemediationTaskRepository
	catalog  *runbooks.Catalog
	executor Executor
	cfg      Config
	logger   *logrus.Logger
	observer Observer

	queue chan string
	wg    sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	runMu   sync.Mutex
	running bool
}

// NewOrchestrator creates the remediation orchestrator.
func NewOrchestrator(
	tasks repositories.RemediationTaskRepository,
	catalog *runbooks.Catalog,
	executor Executor,
	cfg Config,
	logger *logrus.Logger,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 60 * time.Second
	}
	return &Orchestrator{
		tasks:    tasks,
		catalog:  catalog,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan string, cfg.QueueSize),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// SetObserver registers the status change observer. Wired at startup.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// Start launches the execution workers.
func (o *Orchestrator) Start() error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.running {
		return fmt.Errorf("orchestrator is already running")
	}
	o.running = true

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	o.logger.WithField("workers", o.cfg.Workers).Info("Remediation orchestrator started")
	return nil
}

// Stop cancels in-flight executions and waits for workers.
func (o *Orchestrator) Stop() {
	o.runMu.Lock()
	if !o.running {
		o.runMu.Unlock()
		return
	}
	o.running = false
	o.runMu.Unlock()

	o.mu.Lock()
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()

	close(o.queue)
	o.wg.Wait()
	o.logger.Info("Remediation orchestrator stopped")
}

// Submit applies the approval policy to a freshly created task.
// Low-risk tasks may be auto-approved; high-risk tasks always wait
// for a human.
func (o *Orchestrator) Submit(ctx context.Context, task *models.RemediationTask) {
	if o.cfg.AutoApproveLow && task.RiskLevel == models.RiskLow {
		if err := o.tasks.SetApproval(ctx, task.ID, models.RemediationApproved, "auto-approval", time.Now()); err != nil {
			o.logger.WithError(err).WithField("task_id", task.ID).Error("Auto-approval failed")
			return
		}
		o.logger.WithField("task_id", task.ID).Info("Low-risk task auto-approved")
		o.enqueue(task.ID)
		return
	}
	o.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"risk":    task.RiskLevel,
	}).Info("Remediation task awaiting approval")
}

// Approve transitions a pending task to approved and queues it.
func (o *Orchestrator) Approve(ctx context.Context, taskID, user string) error {
	if err := o.tasks.SetApproval(ctx, taskID, models.RemediationApproved, user, time.Now()); err != nil {
		return err
	}
	o.enqueue(taskID)
	return nil
}

// Reject transitions a pending task to rejected. Terminal: the task
// is never executed and a fresh diagnosis cycle is needed to retry.
func (o *Orchestrator) Reject(ctx context.Context, taskID, user string) error {
	if err := o.tasks.SetApproval(ctx, taskID, models.RemediationRejected, user, time.Now()); err != nil {
		return err
	}
	o.notify(ctx, taskID)
	return nil
}

// Retry re-runs a failed task's full command sequence from the start.
// Permitted exactly once per task.
func (o *Orchestrator) Retry(ctx context.Context, taskID string) error {
	task, err := o.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != models.RemediationFailed {
		return apperrors.WithDetails(apperrors.ErrConflict,
			fmt.Sprintf("only failed tasks can be retried, task is %s", task.Status))
	}
	if task.RetryCount >= 1 {
		return apperrors.WithDetails(apperrors.ErrConflict, "task has already been retried")
	}

	if err := o.tasks.IncrementRetry(ctx, taskID); err != nil {
		return err
	}
	if err := o.tasks.UpdateStatus(ctx, taskID, models.RemediationApproved, ""); err != nil {
		return err
	}
	o.enqueue(taskID)
	return nil
}

// Cancel stops an executing task: no further commands are issued, and
// already-applied ones are not rolled back.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[taskID]
	o.mu.Unlock()
	if !ok {
		return apperrors.WithDetails(apperrors.ErrConflict, "task is not executing")
	}
	cancel()
	o.logger.WithField("task_id", taskID).Info("Remediation task cancelled by operator")
	return nil
}

// Scan queues every approved task that is not currently executing.
// Used at startup and by the manual scan endpoint to pick up work
// left behind by a restart.
func (o *Orchestrator) Scan(ctx context.Context) (int, error) {
	approved, err := o.tasks.List(ctx, models.RemediationApproved, 0, 0)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, task := range approved {
		o.mu.Lock()
		_, inFlight := o.cancels[task.ID]
		o.mu.Unlock()
		if inFlight {
			continue
		}
		o.enqueue(task.ID)
		queued++
	}
	return queued, nil
}

func (o *Orchestrator) enqueue(taskID string) {
	select {
	case o.queue <- taskID:
	default:
		o.logger.WithField("task_id", taskID).Warn("Remediation queue full, task stays approved for next scan")
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for taskID := range o.queue {
		o.execute(taskID)
	}
}

// execute runs one approved task to completion.
func (o *Orchestrator) execute(taskID string) {
	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	if _, dup := o.cancels[taskID]; dup {
		o.mu.Unlock()
		cancel()
		return
	}
	o.cancels[taskID] = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.cancels, taskID)
		o.mu.Unlock()
		cancel()
	}()

	task, err := o.tasks.GetByID(ctx, taskID)
	if err != nil {
		o.logger.WithError(err).WithField("task_id", taskID).Error("Cannot execute: task lookup failed")
		return
	}
	if task.Status != models.RemediationApproved {
		o.logger.WithFields(logrus.Fields{
			"task_id": taskID,
			"status":  task.Status,
		}).Warn("Skipping execution: task is not approved")
		return
	}

	book, ok := o.catalog.Get(task.Runbook)
	if !ok {
		o.fail(ctx, task, fmt.Sprintf("unknown runbook %q", task.Runbook))
		return
	}

	// Safety check precedes execution regardless of approval.
	if denied := o.catalog.CheckDenied(book); denied != "" {
		o.fail(ctx, task, fmt.Sprintf("runbook blocked: command %q matches denylist", denied))
		return
	}

	if err := o.tasks.UpdateStatus(ctx, task.ID, models.RemediationExecuting, ""); err != nil {
		o.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to mark task executing")
		return
	}
	o.notify(ctx, task.ID)

	for i, command := range book.Commands {
		if ctx.Err() != nil {
			o.fail(context.Background(), task, "cancelled by operator")
			return
		}

		exitCode, output, runErr := o.executor.Run(ctx, task.Host, command, o.cfg.CommandTimeout)
		if runErr != nil && ctx.Err() != nil {
			o.fail(context.Background(), task, "cancelled by operator")
			return
		}
		if runErr != nil {
			o.fail(ctx, task, fmt.Sprintf("command %d could not run: %v", i+1, runErr))
			return
		}

		exec := &models.CommandExecution{
			TaskID:     task.ID,
			Seq:        i + 1,
			Command:    command,
			ExitCode:   exitCode,
			Output:     output,
			ExecutedAt: time.Now(),
		}
		if err := o.tasks.AppendExecution(ctx, exec); err != nil {
			o.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to record command execution")
		}

		// Fail fast: the first non-zero exit stops the run.
		if exitCode != 0 {
			o.fail(ctx, task, fmt.Sprintf("command %d exited with code %d", i+1, exitCode))
			return
		}
	}

	if err := o.tasks.UpdateStatus(ctx, task.ID, models.RemediationSuccess, ""); err != nil {
		o.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to mark task success")
		return
	}
	o.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"runbook": task.Runbook,
		"host":    task.Host,
	}).Info("Remediation succeeded")
	o.notify(ctx, task.ID)
}

func (o *Orchestrator) fail(ctx context.Context, task *models.RemediationTask, reason string) {
	if err := o.tasks.UpdateStatus(ctx, task.ID, models.RemediationFailed, reason); err != nil {
		o.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to mark task failed")
		return
	}
	o.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"runbook": task.Runbook,
		"reason":  reason,
	}).Error("Remediation failed")
	o.notify(ctx, task.ID)
}

func (o *Orchestrator) notify(ctx context.Context, taskID string) {
	if o.observer == nil {
		return
	}
	task, err := o.tasks.GetByID(ctx, taskID)
	if err != nil {
		return
	}
	o.observer(task)
}
