// Package alert delivers operator notifications over a single email
// channel.
package alert

import (
	"context"

	"agentkeeper/internal/logger"
)

// Sender submits one email. Satisfied by *Mailer.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// Dispatcher wraps a Sender with failure isolation: a broken alert channel
// must never take down the supervision loop that depends on it, so every
// transport error is logged and swallowed here.
type Dispatcher struct {
	sender Sender
}

// NewDispatcher creates a dispatcher around the given sender.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Dispatch sends the alert, appending host context to the body. It never
// returns or propagates an error.
func (d *Dispatcher) Dispatch(ctx context.Context, subject, body string) {
	log := logger.WithComponent("alert")

	if err := d.sender.Send(ctx, subject, withHostContext(body)); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to send alert email")
		return
	}
	log.Info().Str("subject", subject).Msg("Alert email sent")
}
