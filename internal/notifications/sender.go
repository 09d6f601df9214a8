package notifications

import (
	"context"
	"fmt"

	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// Sender delivers one notification to one patient over a single channel.
// Implementations resolve their own recipient field from the patient record
// and fail when it is missing.
type Sender interface {
	Send(ctx context.Context, p *patients.Patient, n *Notification) error
}

// DisabledSender fails every message. It stands in for a channel whose
// credentials are not configured, so missing configuration surfaces as a
// failed notification rather than a silent drop.
type DisabledSender struct {
	channel Channel
	reason  string
}

// NewDisabledSender creates a sender that always fails with the given reason.
func NewDisabledSender(channel Channel, reason string) *DisabledSender {
	return &DisabledSender{channel: channel, reason: reason}
}

func (s *DisabledSender) Send(ctx context.Context, p *patients.Patient, n *Notification) error {
	return fmt.Errorf("notifications: %s channel disabled: %s", s.channel, s.reason)
}

// StubSender logs instead of sending. Used in development environments.
type StubSender struct {
	channel Channel
	logger  *logging.Logger
}

// NewStubSender creates a sender that logs the message and reports success.
func NewStubSender(channel Channel, logger *logging.Logger) *StubSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSender{channel: channel, logger: logger}
}

func (s *StubSender) Send(ctx context.Context, p *patients.Patient, n *Notification) error {
	s.logger.Info("stub sender: would deliver notification",
		"channel", s.channel, "patient_id", p.ID, "notification_id", n.ID)
	return nil
}
