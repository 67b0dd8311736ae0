package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
)

// EmailProvider is one backend able to send a plain-text email.
type EmailProvider interface {
	Name() string
	SendEmail(ctx context.Context, from, to, subject, body string) error
}

// EmailSender tries its providers in order until one accepts the message.
type EmailSender struct {
	from      string
	providers []EmailProvider
	logger    zerolog.Logger
}

func NewEmailSender(from string, logger zerolog.Logger, providers ...EmailProvider) (*EmailSender, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, fmt.Errorf("from is required for email sender")
	}
	active := make([]EmailProvider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("at least one email provider is required")
	}
	return &EmailSender{
		from:      from,
		providers: active,
		logger:    logger.With().Str("notifier", "email").Logger(),
	}, nil
}

func (s *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if !strings.Contains(msg.To, "@") {
		return Permanent(fmt.Errorf("invalid email address %q", msg.To))
	}
	subject, body := renderEmail(msg)

	var (
		lastErr      error
		allPermanent = true
	)
	for _, p := range s.providers {
		err := p.SendEmail(ctx, s.from, msg.To, subject, body)
		if err == nil {
			s.logger.Info().
				Str("notification_id", msg.NotificationID).
				Str("provider", p.Name()).
				Str("to", msg.To).
				Msg("email notification sent")
			return nil
		}
		s.logger.Warn().Err(err).Str("provider", p.Name()).Msg("email provider failed, trying next")
		lastErr = err
		if !IsPermanent(err) {
			allPermanent = false
		}
		if ctx.Err() != nil {
			break
		}
	}
	if allPermanent {
		return lastErr
	}
	return fmt.Errorf("all email providers failed: %w", lastErr)
}

func (s *EmailSender) String() string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return fmt.Sprintf("EmailSender(%s)", strings.Join(names, ","))
}

func renderEmail(msg Message) (string, string) {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(msg.Priority)), strings.TrimSpace(msg.Title))
	if strings.TrimSpace(msg.Title) == "" {
		subject = fmt.Sprintf("[%s] Alert", strings.ToUpper(string(msg.Priority)))
	}

	body := strings.Builder{}
	body.WriteString(strings.TrimSpace(msg.Body))
	body.WriteString("\n\n")
	if msg.Category != "" {
		body.WriteString(fmt.Sprintf("Category: %s\n", msg.Category))
	}
	body.WriteString(fmt.Sprintf("Priority: %s\n", msg.Priority))
	if msg.NotificationID != "" {
		body.WriteString(fmt.Sprintf("Notification: %s\n", msg.NotificationID))
	}
	return subject, body.String()
}
