package diagnosis

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/core/runbooks"
	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
)

// historyLimit bounds how many prior incidents go into the bundle.
const historyLimit = 5

// TaskSink receives a freshly created remediation task for approval
// handling and execution.
type TaskSink func(ctx context.Context, task *models.RemediationTask)

// Connector assembles alert context, consults the diagnosis
// collaborator, and hands runbook-bearing insights off as remediation
// tasks. Every failure path here is non-fatal: the alert simply stays
// in the plain notification flow.
type Connector struct {
	diagnoser Diagnoser
	rules     repositories.AlertRuleRepository
	alerts    repositories.AlertRepository
	tasks     repositories.RemediationTaskRepository
	catalog   *runbooks.Catalog
	sink      TaskSink
	logger    *logrus.Logger
}

// NewConnector creates the diagnosis connector.
func NewConnector(
	diagnoser Diagnoser,
	rules repositories.AlertRuleRepository,
	alerts repositories.AlertRepository,
	tasks repositories.RemediationTaskRepository,
	catalog *runbooks.Catalog,
	logger *logrus.Logger,
) *Connector {
	return &Connector{
		diagnoser: diagnoser,
		rules:     rules,
		alerts:    alerts,
		tasks:     tasks,
		catalog:   catalog,
		logger:    logger,
	}
}

// SetSink registers the receiver for created tasks. Wired at startup.
func (c *Connector) SetSink(sink TaskSink) {
	c.sink = sink
}

// HandleAlert runs one diagnosis cycle for a firing alert and creates
// a RemediationTask when the insight suggests a known runbook.
func (c *Connector) HandleAlert(ctx context.Context, alert *models.Alert) {
	req, err := c.buildRequest(ctx, alert)
	if err != nil {
		c.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Skipping diagnosis: cannot build context")
		return
	}

	insight, err := c.diagnoser.Diagnose(ctx, req)
	if err != nil {
		c.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Diagnosis unavailable, staying in notification flow")
		return
	}
	if insight.Type != InsightRunbook || insight.Runbook == "" {
		c.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"insight":  insight.Type,
		}).Debug("Diagnosis produced no runbook suggestion")
		return
	}

	book, ok := c.catalog.Get(insight.Runbook)
	if !ok {
		c.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"runbook":  insight.Runbook,
		}).Warn("Diagnosis suggested unknown runbook, ignoring")
		return
	}

	task := &models.RemediationTask{
		ID:          uuid.New().String(),
		AlertID:     alert.ID,
		Host:        alert.Target,
		Runbook:     book.Name,
		Diagnosis:   insight.Diagnosis,
		InsightType: insight.Type,
		RiskLevel:   stricterRisk(insight.RiskLevel, book.RiskLevel),
		Status:      models.RemediationPending,
	}
	if err := c.tasks.Create(ctx, task); err != nil {
		c.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to create remediation task")
		return
	}

	c.logger.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"alert_id": alert.ID,
		"runbook":  task.Runbook,
		"risk":     task.RiskLevel,
	}).Info("Remediation task created from diagnosis")

	if c.sink != nil {
		c.sink(ctx, task)
	}
}

func (c *Connector) buildRequest(ctx context.Context, alert *models.Alert) (*Request, error) {
	rule, err := c.rules.GetByID(ctx, alert.RuleID)
	if err != nil {
		return nil, err
	}

	req := &Request{
		AlertID:       alert.ID,
		Title:         alert.Title,
		Message:       alert.Message,
		Severity:      string(alert.Severity),
		Target:        alert.Target,
		ConditionType: string(rule.ConditionType),
		ConditionExpr: rule.ConditionExpr,
		ObservedValue: alert.ObservedValue,
		Threshold:     rule.Threshold,
		Occurrences:   alert.OccurrenceCount,
		FirstFiredAt:  alert.FirstFiredAt,
	}

	prior, err := c.alerts.ListResolvedByFingerprint(ctx, alert.Fingerprint, historyLimit)
	if err != nil {
		c.logger.WithError(err).Warn("Prior incident lookup failed, diagnosing without history")
		return req, nil
	}
	for _, p := range prior {
		summary := IncidentSummary{
			FiredAt:     p.FirstFiredAt,
			Severity:    string(p.Severity),
			Occurrences: p.OccurrenceCount,
		}
		if p.ResolvedAt != nil {
			summary.ResolvedAt = *p.ResolvedAt
		}
		req.History = append(req.History, summary)
	}
	return req, nil
}

var riskRank = map[models.RiskLevel]int{
	models.RiskLow:    1,
	models.RiskMedium: 2,
	models.RiskHigh:   3,
}

// stricterRisk keeps whichever of the collaborator's and the catalog's
// risk ratings is more restrictive.
func stricterRisk(a, b models.RiskLevel) models.RiskLevel {
	if riskRank[a] >= riskRank[b] {
		return a
	}
	return b
}
