package diagnosis

import (
	"context"
	"time"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// Insight type variants. Unknown payloads from the collaborator are
// preserved under InsightRaw rather than dropped.
const (
	InsightRunbook  = "runbook"
	InsightAnalysis = "analysis"
	InsightRaw      = "raw"
)

// IncidentSummary is one prior resolved occurrence of the same
// condition, included so the collaborator can recognize repeats.
type IncidentSummary struct {
	FiredAt     time.Time `json:"fired_at"`
	ResolvedAt  time.Time `json:"resolved_at"`
	Severity    string    `json:"severity"`
	Occurrences int64     `json:"occurrences"`
}

// Request is the context bundle submitted for diagnosis.
type Request struct {
	AlertID       string            `json:"alert_id"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Severity      string            `json:"severity"`
	Target        string            `json:"target"`
	ConditionType string            `json:"condition_type"`
	ConditionExpr string            `json:"condition_expr"`
	ObservedValue float64           `json:"observed_value"`
	Threshold     float64           `json:"threshold"`
	Occurrences   int64             `json:"occurrences"`
	FirstFiredAt  time.Time         `json:"first_fired_at"`
	History       []IncidentSummary `json:"history,omitempty"`
}

// Insight is the collaborator's answer. Runbook is empty when no
// remediation is suggested; Raw carries the unparsed payload for the
// raw fallback variant.
type Insight struct {
	Type      string           `json:"insight_type"`
	Diagnosis string           `json:"diagnosis"`
	Runbook   string           `json:"runbook,omitempty"`
	RiskLevel models.RiskLevel `json:"risk_level,omitempty"`
	Raw       string           `json:"raw,omitempty"`
}

// Diagnoser submits a context bundle to the diagnosis collaborator.
type Diagnoser interface {
	Diagnose(ctx context.Context, req *Request) (*Insight, error)
}
