package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
)

// EmailSender delivers messages over SMTP. Channel config keys:
// host, port, from, to (comma separated), and optional username and
// password for plain auth.
type EmailSender struct{}

// NewEmailSender creates an email sender.
func NewEmailSender() *EmailSender {
	return &EmailSender{}
}

// Send delivers the message to the channel's recipients.
func (s *EmailSender) Send(ctx context.Context, message string, channel *models.NotificationChannel) (int, error) {
	host, _ := channel.Config["host"].(string)
	from, _ := channel.Config["from"].(string)
	toRaw, _ := channel.Config["to"].(string)
	if host == "" || from == "" || toRaw == "" {
		return 0, fmt.Errorf("email channel %d needs host, from and to configured", channel.ID)
	}

	port := "25"
	if p, ok := channel.Config["port"].(string); ok && p != "" {
		port = p
	} else if p, ok := channel.Config["port"].(float64); ok {
		port = fmt.Sprintf("%.0f", p)
	}

	recipients := strings.Split(toRaw, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}

	subject := "opswatch alert"
	if first, _, ok := strings.Cut(message, "\n"); ok {
		subject = first
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		from, strings.Join(recipients, ", "), subject, message)

	var auth smtp.Auth
	if user, ok := channel.Config["username"].(string); ok && user != "" {
		password, _ := channel.Config["password"].(string)
		auth = smtp.PlainAuth("", user, password, host)
	}

	addr := host + ":" + port
	if err := smtp.SendMail(addr, auth, from, recipients, []byte(body)); err != nil {
		return 0, apperrors.Transient(fmt.Errorf("smtp send failed: %w", err))
	}
	return 250, nil
}
