package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"agentkeeper/internal/config"
	"agentkeeper/internal/network"
)

// Mailer submits alert emails over SMTP with STARTTLS and plain auth.
type Mailer struct {
	client *mail.Client
	from   string
	to     string
}

// NewMailer creates a mailer from the alert settings. The password comes
// from the secret store, never from the config file. An optional SOCKS5
// proxy routes the SMTP connection the same way the artifact download is
// routed.
func NewMailer(cfg config.AlertConfig, password string, socks config.SOCKSConfig) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTPUsername),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(30 * time.Second),
	}
	if dial := network.DialContextFunc(socks.Host, socks.Port); dial != nil {
		opts = append(opts, mail.WithDialContextFunc(dial))
	}

	client, err := mail.NewClient(cfg.SMTPServer, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return &Mailer{
		client: client,
		from:   cfg.SMTPUsername,
		to:     cfg.Email,
	}, nil
}

// Send submits one message. Errors are returned to the caller; the
// Dispatcher decides what to do with them.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid sender address %q: %w", m.from, err)
	}
	if err := msg.To(m.to); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", m.to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("SMTP submission failed: %w", err)
	}
	return nil
}
