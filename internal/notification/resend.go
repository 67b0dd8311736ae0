package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/stanstork/beacon/internal/config"
)

type ResendMailer struct {
	client *resend.Client
}

func NewResendMailer(cfg config.ResendConfig) (*ResendMailer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("email.resend.api_key is required for the resend provider")
	}
	return &ResendMailer{client: resend.NewClient(apiKey)}, nil
}

func (m *ResendMailer) Name() string {
	return "resend"
}

func (m *ResendMailer) SendEmail(ctx context.Context, from, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	}
	if _, err := m.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	return nil
}
