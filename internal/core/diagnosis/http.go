package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// HTTPDiagnoser talks to the diagnosis collaborator over HTTP. The
// collaborator is best-effort: at most one retry, short timeout, and
// any hard failure simply means no remediation for this alert.
type HTTPDiagnoser struct {
	url    string
	apiKey string
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPDiagnoser creates a diagnoser against the given endpoint.
func NewHTTPDiagnoser(url, apiKey string, timeout time.Duration, logger *logrus.Logger) *HTTPDiagnoser {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDiagnoser{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Diagnose submits the context bundle. A failed first attempt gets
// exactly one retry before the error is returned.
func (d *HTTPDiagnoser) Diagnose(ctx context.Context, req *Request) (*Insight, error) {
	insight, err := d.attempt(ctx, req)
	if err == nil {
		return insight, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	d.logger.WithError(err).WithField("alert_id", req.AlertID).Warn("Diagnosis attempt failed, retrying once")
	return d.attempt(ctx, req)
}

func (d *HTTPDiagnoser) attempt(ctx context.Context, req *Request) (*Insight, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal diagnosis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build diagnosis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("diagnosis call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read diagnosis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("diagnosis collaborator returned %d", resp.StatusCode)
	}

	return ParseInsight(raw), nil
}

// ParseInsight decodes a collaborator payload into a known variant,
// falling back to the raw variant when the payload does not fit.
func ParseInsight(raw []byte) *Insight {
	var insight Insight
	if err := json.Unmarshal(raw, &insight); err != nil || insight.Diagnosis == "" {
		return &Insight{Type: InsightRaw, Raw: string(raw)}
	}

	switch insight.Type {
	case InsightRunbook, InsightAnalysis:
		// Known variant as tagged.
	case "":
		if insight.Runbook != "" {
			insight.Type = InsightRunbook
		} else {
			insight.Type = InsightAnalysis
		}
	default:
		insight.Raw = string(raw)
		insight.Type = InsightRaw
	}

	if insight.Type == InsightRunbook && !insight.RiskLevel.Valid() {
		// Unstated risk is treated as the most restrictive.
		insight.RiskLevel = models.RiskHigh
	}
	return &insight
}
