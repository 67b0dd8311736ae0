package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/stanstork/beacon/internal/config"
)

// SMTPMailer sends email through a plain SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg config.EmailConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	return &SMTPMailer{
		host:     strings.TrimSpace(cfg.SMTPHost),
		port:     cfg.SMTPPort,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		sendMail: smtp.SendMail,
	}, nil
}

func (m *SMTPMailer) Name() string {
	return "smtp"
}

// SendEmail gives up waiting when ctx ends; net/smtp itself has no context support.
func (m *SMTPMailer) SendEmail(ctx context.Context, from, to, subject, body string) error {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		from, to, subject)
	message := []byte(headers + body)
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.sendMail(addr, auth, from, []string{to}, message)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
