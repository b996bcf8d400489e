package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/ports"
)

const (
	sesMaxRetries     = 3
	sesBaseRetryDelay = 1 * time.Second
)

// SESConfig holds the settings of the SES back-end
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// From overrides the envelope sender when set
	From string
}

// SendEmailAPI is the SES v2 operation used for delivery
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES submits sanitized messages unchanged as SES raw messages
type SES struct {
	client     SendEmailAPI
	from       string
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewSES loads AWS configuration and builds an SES client. Static
// credentials are used when both keys are set, the default chain otherwise.
func NewSES(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SES, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESWithClient(sesv2.NewFromConfig(awsCfg), cfg.From, logger), nil
}

// NewSESWithClient uses the given client
func NewSESWithClient(client SendEmailAPI, from string, logger *zap.Logger) *SES {
	return &SES{
		client:     client,
		from:       from,
		logger:     logger,
		retryDelay: sesBaseRetryDelay,
	}
}

// Name identifies the back-end
func (s *SES) Name() string {
	return "ses"
}

// Deliver submits the message, retrying transient failures with
// exponential backoff
func (s *SES) Deliver(ctx context.Context, env ports.Envelope, id string, msg []byte) error {
	from := s.from
	if from == "" {
		from = env.From
	}

	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{ToAddresses: env.To},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: msg},
		},
	}
	if from != "" {
		input.FromEmailAddress = aws.String(from)
	}

	var lastErr error
	delay := s.retryDelay
	for attempt := 0; attempt <= sesMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry wait: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		out, err := s.client.SendEmail(ctx, input)
		if err == nil {
			var sesID string
			if out != nil {
				sesID = aws.ToString(out.MessageId)
			}
			s.logger.Debug("Submitted message to SES",
				zap.String("message_id", id),
				zap.String("ses_message_id", sesID))
			return nil
		}

		lastErr = err
		s.logger.Warn("SES API error",
			zap.Int("attempt", attempt),
			zap.String("message_id", id),
			zap.Error(err))
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", sesMaxRetries, lastErr)
}
