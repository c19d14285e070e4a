package notifier

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESConfig struct {
	Region          string
	Sender          string
	AccessKeyID     string
	SecretAccessKey string
}

// SESAPI is the subset of the SES client used to send mail.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender delivers e-mail through Amazon SES.
type SESSender struct {
	client SESAPI
	sender string
}

// NewSESSender loads the AWS config for the region. Static keys are used when
// set; otherwise the default credential chain applies.
func NewSESSender(ctx context.Context, cfg SESConfig) (*SESSender, error) {
	if cfg.Sender == "" {
		return nil, fmt.Errorf("email sender address is not configured")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESSenderWithClient(ses.NewFromConfig(awsCfg), cfg.Sender), nil
}

func NewSESSenderWithClient(client SESAPI, sender string) *SESSender {
	return &SESSender{client: client, sender: sender}
}

func content(s string) *types.Content {
	return &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(s)}
}

func (s *SESSender) Send(ctx context.Context, to, subject, text, html string) error {
	if to == "" {
		return fmt.Errorf("recipient email address is empty")
	}
	in := &ses.SendEmailInput{
		Source:      aws.String(s.sender),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: content(subject),
			Body: &types.Body{
				Text: content(text),
				Html: content(html),
			},
		},
	}
	if _, err := s.client.SendEmail(ctx, in); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
