package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/core/alerts"
	"github.com/opswatch/opswatch-backend-go/internal/core/metrics"
	"github.com/opswatch/opswatch-backend-go/internal/core/signals"
	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
)

// Config contains evaluator tuning.
type Config struct {
	TickInterval     time.Duration
	FetchTimeout     time.Duration
	FailureThreshold int
	RuleCacheTTL     time.Duration
}

// Engine evaluates enabled rules against current signal values on a
// fixed-interval schedule. Fetch failures degrade the individual rule
// and never interrupt the loop.
type Engine struct {
	rules   repositories.AlertRuleRepository
	sources *signals.Registry
	dedup   *alerts.Service
	cache   *ruleCache
	cfg     Config
	logger  *logrus.Logger

	cron    *cron.Cron
	entryID cron.EntryID

	mu       sync.Mutex
	failures map[int64]int
	degraded map[int64]bool

	tickMu sync.Mutex
}

// NewEngine creates the rule evaluation engine.
func NewEngine(
	rules repositories.AlertRuleRepository,
	sources *signals.Registry,
	dedup *alerts.Service,
	cfg Config,
	logger *logrus.Logger,
) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	return &Engine{
		rules:    rules,
		sources:  sources,
		dedup:    dedup,
		cache:    newRuleCache(rules, cfg.RuleCacheTTL),
		cfg:      cfg,
		logger:   logger,
		cron:     cron.New(),
		failures: make(map[int64]int),
		degraded: make(map[int64]bool),
	}
}

// Start schedules the evaluation tick.
func (e *Engine) Start() error {
	spec := fmt.Sprintf("@every %s", e.cfg.TickInterval)
	id, err := e.cron.AddFunc(spec, e.Tick)
	if err != nil {
		return fmt.Errorf("failed to schedule evaluation tick: %w", err)
	}
	e.entryID = id
	e.cron.Start()
	e.logger.WithField("interval", e.cfg.TickInterval).Info("Rule evaluator started")
	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (e *Engine) Stop() {
	ctx := e.cron.Stop()
	<-ctx.Done()
	e.logger.Info("Rule evaluator stopped")
}

// InvalidateRule drops the rule cache after a rule write. Must be
// called before the write is acknowledged.
func (e *Engine) InvalidateRule(id int64) {
	e.cache.Invalidate(id)
}

// Degraded returns the ids of rules currently in degraded evaluation.
func (e *Engine) Degraded() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.degraded))
	for id := range e.degraded {
		ids = append(ids, id)
	}
	return ids
}

// Tick runs one evaluation pass over every due rule. Exported so the
// manual scan endpoint can trigger a pass outside the schedule.
func (e *Engine) Tick() {
	// One pass at a time; a slow pass skips rather than stacks.
	if !e.tickMu.TryLock() {
		e.logger.Warn("Evaluation tick still running, skipping this interval")
		return
	}
	defer e.tickMu.Unlock()

	ctx := context.Background()
	rules, err := e.cache.Get(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to load rules for evaluation")
		return
	}

	now := time.Now()
	for _, rule := range rules {
		if !e.due(rule, now) {
			continue
		}
		e.evaluate(ctx, rule, now)
	}
}

// due reports whether the rule's evaluation window has elapsed since
// it was last evaluated.
func (e *Engine) due(rule *models.AlertRule, now time.Time) bool {
	if rule.LastEvaluatedAt == nil {
		return true
	}
	return now.Sub(*rule.LastEvaluatedAt) >= rule.EvaluationWindow()
}

// evaluate runs one rule once: fetch, compare, hand the outcome to the
// deduplicator. last_evaluated_at is touched exactly once regardless
// of the outcome so scheduling stays idempotent.
func (e *Engine) evaluate(ctx context.Context, rule *models.AlertRule, now time.Time) {
	if err := e.rules.TouchEvaluated(ctx, rule.ID, now); err != nil {
		e.logger.WithError(err).WithField("rule_id", rule.ID).Error("Failed to record evaluation time")
		return
	}
	rule.LastEvaluatedAt = &now

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	observed, err := e.sources.Fetch(fetchCtx, rule.Target, signals.Query{
		Type: rule.ConditionType,
		Expr: rule.ConditionExpr,
	})
	cancel()

	if err != nil {
		metrics.RecordEvaluation("fetch_error")
		e.recordFailure(rule, err)
		return
	}
	e.recordSuccess(rule.ID)

	violated, err := Compare(observed, rule.Operator, rule.Threshold)
	if err != nil {
		e.logger.WithError(err).WithField("rule_id", rule.ID).Error("Rule has invalid comparison operator")
		return
	}

	if violated {
		metrics.RecordEvaluation("violation")
		if err := e.dedup.HandleViolation(ctx, rule, observed, now); err != nil {
			e.logger.WithError(err).WithField("rule_id", rule.ID).Error("Failed to process violation")
		}
		return
	}
	metrics.RecordEvaluation("ok")
	if err := e.dedup.HandleClear(ctx, rule); err != nil {
		e.logger.WithError(err).WithField("rule_id", rule.ID).Error("Failed to process clear window")
	}
}

// recordFailure counts consecutive fetch errors and flips the rule
// into degraded evaluation at the threshold. A fetch error is treated
// as "no violation" and never breaks the schedule.
func (e *Engine) recordFailure(rule *models.AlertRule, err error) {
	e.mu.Lock()
	e.failures[rule.ID]++
	count := e.failures[rule.ID]
	justDegraded := count == e.cfg.FailureThreshold && !e.degraded[rule.ID]
	if justDegraded {
		e.degraded[rule.ID] = true
	}
	metrics.SetDegradedRules(len(e.degraded))
	e.mu.Unlock()

	entry := e.logger.WithError(err).WithFields(logrus.Fields{
		"rule_id":  rule.ID,
		"target":   rule.Target,
		"failures": count,
	})
	if justDegraded {
		entry.Error("Rule degraded: signal source keeps failing")
		return
	}
	entry.Warn("Signal fetch failed, treating as no violation")
}

func (e *Engine) recordSuccess(ruleID int64) {
	e.mu.Lock()
	if e.degraded[ruleID] {
		e.logger.WithField("rule_id", ruleID).Info("Rule recovered from degraded evaluation")
	}
	delete(e.failures, ruleID)
	delete(e.degraded, ruleID)
	metrics.SetDegradedRules(len(e.degraded))
	e.mu.Unlock()
}

// Compare applies a rule comparison operator.
func Compare(observed float64, operator string, threshold float64) (bool, error) {
	switch operator {
	case ">":
		return observed > threshold, nil
	case ">=":
		return observed >= threshold, nil
	case "<":
		return observed < threshold, nil
	case "<=":
		return observed <= threshold, nil
	case "==":
		return observed == threshold, nil
	case "!=":
		return observed != threshold, nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", operator)
	}
}
