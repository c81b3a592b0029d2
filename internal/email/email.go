package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog/log"
)

// Sender abstracts outbound mail so the worker can be tested with a double.
type Sender interface {
	Send(ctx context.Context, to []string, subject, text string) error
}

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (s *ResendSender) Send(ctx context.Context, to []string, subject, text string) error {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      to,
		Subject: subject,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	log.Debug().Str("message_id", sent.Id).Strs("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// LogSender is the dev-mode sender: it only logs what would have gone out.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to []string, subject, text string) error {
	log.Info().Strs("to", to).Str("subject", subject).Int("bytes", len(text)).Msg("email suppressed (dev mode)")
	return nil
}

var _ Sender = (*ResendSender)(nil)
var _ Sender = LogSender{}
