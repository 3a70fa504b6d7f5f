package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"

	"github.com/mailgoal/mailgoal/internal/validation"
)

// Message is one outgoing reminder.
type Message struct {
	GoalID  string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type EmailService struct {
	client    *resend.Client
	fromEmail string
	isDev     bool
}

func NewEmailService(apiKey, fromEmail string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		isDev:     isDev,
	}
}

// NewEmailServiceWithClient always delivers through client, even in development.
func NewEmailServiceWithClient(client *resend.Client, fromEmail string) *EmailService {
	return &EmailService{client: client, fromEmail: fromEmail}
}

func (s *EmailService) Send(ctx context.Context, msg Message) (string, error) {
	err := validation.ValidateEmail(msg.To)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidRecipient, err)
	}

	if s.isDev {
		id := "dev-" + uuid.NewString()
		slog.Info("email sent (dev mode)", "type", "goal_reminder", "to", msg.To, "subject", msg.Subject, "goal_id", msg.GoalID, "message_id", id)
		return id, nil
	}

	if s.client == nil {
		return "", fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Tags:    []resend.Tag{{Name: "category", Value: "goal_reminder"}},
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}

	slog.Info("email sent", "type", "goal_reminder", "to", msg.To, "goal_id", msg.GoalID, "message_id", sent.Id)
	return sent.Id, nil
}
