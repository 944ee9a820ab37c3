package signals

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

// HTTPProbeSource observes remote services over HTTP. Metric
// expressions: "status_code" yields the response code, "latency_ms"
// yields the round-trip time in milliseconds, "up" yields 1 for a 2xx
// response and 0 otherwise.
type HTTPProbeSource struct {
	scheme string
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPProbeSource creates a probe source for one URL scheme. The
// registry strips the scheme from the target before delegating, so the
// source has to carry it.
func NewHTTPProbeSource(scheme string, timeout time.Duration, logger *logrus.Logger) *HTTPProbeSource {
	if scheme == "" {
		scheme = "http"
	}
	return &HTTPProbeSource{
		scheme: scheme,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Name returns the source name
func (s *HTTPProbeSource) Name() string { return s.scheme }

// Fetch probes the target URL and derives the requested observation.
func (s *HTTPProbeSource) Fetch(ctx context.Context, target string, query Query) (float64, error) {
	if query.Type != models.ConditionMetric {
		return 0, fmt.Errorf("http probe source does not support %s conditions", query.Type)
	}

	url := s.scheme + "://" + target

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if query.Expr == "up" {
			return 0, nil
		}
		return 0, apperrors.Transient(fmt.Errorf("probe failed for %s: %w", target, err))
	}
	defer resp.Body.Close()

	switch query.Expr {
	case "status_code":
		return float64(resp.StatusCode), nil
	case "latency_ms":
		return float64(elapsed.Milliseconds()), nil
	case "up":
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown probe metric %q", query.Expr)
	}
}
