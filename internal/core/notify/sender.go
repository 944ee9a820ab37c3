package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

// Sender delivers a rendered message over one channel type. The
// returned status code is recorded in the notification log.
// Implementations mark retryable failures with apperrors.Transient.
type Sender interface {
	Send(ctx context.Context, message string, channel *models.NotificationChannel) (int, error)
}

// postJSON posts a JSON payload and classifies the outcome: timeouts
// and 5xx are transient, 4xx and config problems are permanent.
func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return 0, apperrors.Transient(fmt.Errorf("send timed out: %w", err))
		}
		return 0, apperrors.Transient(fmt.Errorf("send failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode >= 500:
		return resp.StatusCode, apperrors.Transient(fmt.Errorf("channel endpoint returned %d", resp.StatusCode))
	default:
		return resp.StatusCode, fmt.Errorf("channel endpoint returned %d", resp.StatusCode)
	}
}

func channelURL(channel *models.NotificationChannel) (string, error) {
	url, ok := channel.Config["url"].(string)
	if !ok || url == "" {
		return "", fmt.Errorf("channel %d has no url configured", channel.ID)
	}
	return url, nil
}

// WebhookSender posts the message as a plain JSON document.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{client: &http.Client{Timeout: timeout}}
}

// Send posts {"text": message} to the configured URL.
func (s *WebhookSender) Send(ctx context.Context, message string, channel *models.NotificationChannel) (int, error) {
	url, err := channelURL(channel)
	if err != nil {
		return 0, err
	}
	return postJSON(ctx, s.client, url, map[string]string{"text": message})
}
