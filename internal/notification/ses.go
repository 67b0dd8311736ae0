package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stanstork/beacon/internal/config"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESMailer struct {
	client sesAPI
}

// NewSESMailer loads AWS credentials from the default chain.
func NewSESMailer(ctx context.Context, cfg config.SESConfig) (*SESMailer, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESMailer{client: sesv2.NewFromConfig(awsCfg)}, nil
}

func (m *SESMailer) Name() string {
	return "ses"
}

func (m *SESMailer) SendEmail(ctx context.Context, from, to, subject, body string) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	}
	if _, err := m.client.SendEmail(ctx, input); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not verified") {
			return Permanent(fmt.Errorf("ses send failed: %w", err))
		}
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}
