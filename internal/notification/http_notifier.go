package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stanstork/beacon/internal/config"
	"github.com/stanstork/beacon/internal/models"
)

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return Permanent(fmt.Errorf("marshal payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp)
}

// statusError treats 4xx as permanent, except for timeouts and rate limiting.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}

// SlackSender posts to the recipient's incoming webhook.
type SlackSender struct {
	client *http.Client
}

func NewSlackSender(client *http.Client) *SlackSender {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SlackSender{client: client}
}

func (s *SlackSender) Channel() models.Channel {
	return models.ChannelSlack
}

func (s *SlackSender) Send(ctx context.Context, msg Message) error {
	if !strings.HasPrefix(msg.To, "http://") && !strings.HasPrefix(msg.To, "https://") {
		return Permanent(fmt.Errorf("invalid slack webhook url %q", msg.To))
	}
	body := map[string]interface{}{
		"text": fmt.Sprintf("%s *%s*\n%s", slackEmoji(msg.Priority), msg.Title, msg.Body),
	}
	return postJSON(ctx, s.client, msg.To, nil, body)
}

func slackEmoji(p models.Priority) string {
	switch p {
	case models.PriorityCritical:
		return ":rotating_light:"
	case models.PriorityHigh:
		return ":warning:"
	case models.PriorityMedium:
		return ":large_orange_diamond:"
	}
	return ":information_source:"
}

// SMSSender posts text messages to an HTTP SMS gateway.
type SMSSender struct {
	client     *http.Client
	gatewayURL string
	apiKey     string
	sender     string
}

func NewSMSSender(cfg config.SMSConfig, client *http.Client) (*SMSSender, error) {
	url := strings.TrimSpace(cfg.GatewayURL)
	if url == "" {
		return nil, fmt.Errorf("sms.gateway_url is required for sms delivery")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SMSSender{client: client, gatewayURL: url, apiKey: cfg.APIKey, sender: cfg.Sender}, nil
}

func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	if !strings.HasPrefix(msg.To, "+") {
		return Permanent(fmt.Errorf("phone number %q is not in E.164 form", msg.To))
	}
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["Authorization"] = "Bearer " + s.apiKey
	}
	body := map[string]string{
		"from": s.sender,
		"to":   msg.To,
		"text": fmt.Sprintf("%s: %s", msg.Title, msg.Body),
	}
	return postJSON(ctx, s.client, s.gatewayURL, headers, body)
}
