package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

var ErrMissingRecipient = errors.New("notification needs a recipient and a subject")

// Sender delivers one message. Callers treat delivery as best effort.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer is the mock mail transport: it writes the message to the log and succeeds.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "mailer").Logger()}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if msg.To == "" || msg.Subject == "" {
		return ErrMissingRecipient
	}
	m.logger.Info().
		Str("kind", msg.Kind).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("appointment_id", msg.AppointmentID).
		Msg("[MOCK EMAIL]\n" + msg.Body)
	return nil
}

// Dispatch sends msg and swallows any failure after logging it.
// It reports whether the message was handed off.
func Dispatch(ctx context.Context, logger zerolog.Logger, sender Sender, msg Message) bool {
	if sender == nil {
		return false
	}
	if err := sender.Send(ctx, msg); err != nil {
		logger.Warn().Err(err).
			Str("kind", msg.Kind).
			Str("appointment_id", msg.AppointmentID).
			Msg("notification failed")
		return false
	}
	return true
}
