package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SESAPI is the part of the SES v2 client the sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

var _ Sender = (*SESSender)(nil)

// SESSender delivers confirmations through Amazon SES.
type SESSender struct {
	client    SESAPI
	fromEmail string
	fromName  string
}

// NewSESSender loads the default AWS configuration for region.
func NewSESSender(ctx context.Context, region, fromEmail, fromName string) (*SESSender, error) {
	if fromEmail == "" {
		return nil, errors.New("[NewSESSender] from email is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "[NewSESSender] LoadDefaultConfig")
	}
	log.Info().Str("from", fromEmail).Str("region", region).Msg("email service enabled")
	return NewSESSenderWithClient(sesv2.NewFromConfig(cfg), fromEmail, fromName), nil
}

// NewSESSenderWithClient wraps an existing client.
func NewSESSenderWithClient(client SESAPI, fromEmail, fromName string) *SESSender {
	return &SESSender{client: client, fromEmail: fromEmail, fromName: fromName}
}

func (s *SESSender) SendConfirmation(ctx context.Context, toEmail, confirmLink string) error {
	subject := "Confirm your Campus Events account"
	textBody := fmt.Sprintf("Follow this link to confirm your email address:\n\n%s\n", confirmLink)
	htmlBody := fmt.Sprintf(`<p>Follow this link to confirm your email address:</p><p><a href="%s">Confirm my email</a></p>`, confirmLink)

	from := s.fromEmail
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "[SESSender.SendConfirmation] %s", toEmail)
	}
	log.Debug().Str("to", toEmail).Msg("confirmation email sent")
	return nil
}
