package notifications

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// EmailConfig holds SendGrid configuration.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// EmailSender delivers notifications by email via SendGrid.
type EmailSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewEmailSender creates the email channel sender. Without an API key the
// channel is disabled and every send fails with a configuration error.
func NewEmailSender(cfg EmailConfig, logger *logging.Logger) Sender {
	if cfg.APIKey == "" {
		return NewDisabledSender(ChannelEmail, "SENDGRID_API_KEY not set")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "KinéBilan"
	}
	return &EmailSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send delivers one email. Fails when the patient has no email on file.
func (s *EmailSender) Send(ctx context.Context, p *patients.Patient, n *Notification) error {
	if p.Email == nil || *p.Email == "" {
		return fmt.Errorf("notifications: patient %s has no email on file", p.ID)
	}

	subject := "Notification de votre kinésithérapeute"
	if n.Subject != nil && *n.Subject != "" {
		subject = *n.Subject
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(p.FirstName+" "+p.LastName, *p.Email)
	message := mail.NewSingleEmail(from, subject, to, n.Message, n.Message)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "notification_id", n.ID)
		return fmt.Errorf("notifications: sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status",
			"status", response.StatusCode, "body", response.Body, "notification_id", n.ID)
		return fmt.Errorf("notifications: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent", "notification_id", n.ID, "status", response.StatusCode)
	return nil
}
