package notify

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/mailgun/mailgun-go/v4"
)

// MailgunConfig holds the configuration for Mailgun
type MailgunConfig struct {
	Key     string
	Domain  string
	From    string
	Subject string
}

// Validate checks required fields
func (c MailgunConfig) Validate() error {
	if c.Key == "" || c.Domain == "" || c.From == "" {
		return goerrors.New("invalid Mailgun configuration", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"domain": c.Domain})
	}
	return nil
}

// MailSender is the subset of mailgun.Mailgun used to send
type MailSender interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

// MailgunNotifier emails reset links directly
type MailgunNotifier struct {
	mg      MailSender
	from    string
	subject string
}

// NewMailgunNotifier builds a client from cfg
func NewMailgunNotifier(cfg MailgunConfig) (*MailgunNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewMailgunNotifierWithSender(mailgun.NewMailgun(cfg.Domain, cfg.Key), cfg), nil
}

// NewMailgunNotifierWithSender uses an existing sender
func NewMailgunNotifierWithSender(mg MailSender, cfg MailgunConfig) *MailgunNotifier {
	subject := cfg.Subject
	if subject == "" {
		subject = "Password change"
	}
	return &MailgunNotifier{mg: mg, from: cfg.From, subject: subject}
}

func (n *MailgunNotifier) Send(ctx context.Context, destination, payload string) error {
	text := fmt.Sprintf("Use the link below to set a new password:\n\n%s\n\nIf you did not request this, ignore this email.", payload)

	message := n.mg.NewMessage(n.from, n.subject, text)
	if err := message.AddRecipient(destination); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient")
	}

	if _, _, err := n.mg.Send(ctx, message); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send email").
			WithMetadata(map[string]any{"to": destination})
	}
	return nil
}
