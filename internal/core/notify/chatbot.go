package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// DingTalkSender posts to a DingTalk robot webhook.
type DingTalkSender struct {
	client *http.Client
}

// NewDingTalkSender creates a DingTalk sender.
func NewDingTalkSender(timeout time.Duration) *DingTalkSender {
	return &DingTalkSender{client: &http.Client{Timeout: timeout}}
}

// Send posts a text message in DingTalk's robot payload shape.
func (s *DingTalkSender) Send(ctx context.Context, message string, channel *models.NotificationChannel) (int, error) {
	url, err := channelURL(channel)
	if err != nil {
		return 0, err
	}
	payload := map[string]interface{}{
		"msgtype": "text",
		"text":    map[string]string{"content": message},
	}
	return postJSON(ctx, s.client, url, payload)
}

// WeComSender posts to a WeCom group robot webhook.
type WeComSender struct {
	client *http.Client
}

// NewWeComSender creates a WeCom sender.
func NewWeComSender(timeout time.Duration) *WeComSender {
	return &WeComSender{client: &http.Client{Timeout: timeout}}
}

// Send posts a text message in WeCom's robot payload shape.
func (s *WeComSender) Send(ctx context.Context, message string, channel *models.NotificationChannel) (int, error) {
	url, err := channelURL(channel)
	if err != nil {
		return 0, err
	}
	payload := map[string]interface{}{
		"msgtype": "text",
		"text":    map[string]string{"content": message},
	}
	return postJSON(ctx, s.client, url, payload)
}

// SlackSender posts to a Slack incoming webhook.
type SlackSender struct {
	client *http.Client
}

// NewSlackSender creates a Slack sender.
func NewSlackSender(timeout time.Duration) *SlackSender {
	return &SlackSender{client: &http.Client{Timeout: timeout}}
}

// Send posts {"text": message} to the webhook URL.
func (s *SlackSender) Send(ctx context.Context, message string, channel *models.NotificationChannel) (int, error) {
	url, err := channelURL(channel)
	if err != nil {
		return 0, err
	}
	return postJSON(ctx, s.client, url, map[string]string{"text": message})
}
