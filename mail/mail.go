// Package mail sends the sign up confirmation emails the auth backend issues.
package mail

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Sender delivers a confirmation link to a user.
type Sender interface {
	SendConfirmation(ctx context.Context, toEmail, confirmLink string) error
}

// ConfirmationLink builds the link a user follows to confirm their email.
func ConfirmationLink(siteURL, token string) string {
	return fmt.Sprintf("%s/auth/confirm?token=%s&type=signup", siteURL, token)
}

var _ Sender = (*LogSender)(nil)

// LogSender writes confirmation links to the log instead of sending them.
type LogSender struct{}

func (LogSender) SendConfirmation(_ context.Context, toEmail, confirmLink string) error {
	log.Info().Str("to", toEmail).Str("link", confirmLink).Msg("confirmation email (not sent)")
	return nil
}

// Message is one recorded confirmation.
type Message struct {
	To   string
	Link string
}

var _ Sender = (*RecordingSender)(nil)

// RecordingSender keeps every confirmation in memory.
type RecordingSender struct {
	lock     sync.Mutex
	messages []Message
}

func (r *RecordingSender) SendConfirmation(_ context.Context, toEmail, confirmLink string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.messages = append(r.messages, Message{To: toEmail, Link: confirmLink})
	return nil
}

// Messages returns the confirmations sent to toEmail, or all when toEmail is "".
func (r *RecordingSender) Messages(toEmail string) []Message {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []Message
	for _, m := range r.messages {
		if toEmail == "" || m.To == toEmail {
			out = append(out, m)
		}
	}
	return out
}
