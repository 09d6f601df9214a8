package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/kinebilan/kinebilan-backend/internal/devices"
	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// PushSender delivers notifications through Firebase Cloud Messaging to every
// active device a patient has registered. A send counts as delivered when at
// least one token accepts the message.
type PushSender struct {
	client  *messaging.Client
	devices *devices.Store
	logger  *logging.Logger
}

// NewPushSender creates the push channel sender. Without a credentials file,
// or when Firebase initialization fails, the channel is disabled and every
// send fails with a configuration error.
func NewPushSender(ctx context.Context, credentialsPath string, deviceStore *devices.Store, logger *logging.Logger) Sender {
	if credentialsPath == "" {
		return NewDisabledSender(ChannelPush, "FIREBASE_CREDENTIALS_PATH not set")
	}
	if logger == nil {
		logger = logging.Default()
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		logger.Error("firebase initialization failed", "error", err)
		return NewDisabledSender(ChannelPush, fmt.Sprintf("firebase init: %v", err))
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		logger.Error("firebase messaging client failed", "error", err)
		return NewDisabledSender(ChannelPush, fmt.Sprintf("firebase messaging: %v", err))
	}
	return &PushSender{client: client, devices: deviceStore, logger: logger}
}

// Send pushes the notification to every active device token. Tokens Firebase
// reports as unregistered are deactivated so the next send skips them.
func (s *PushSender) Send(ctx context.Context, p *patients.Patient, n *Notification) error {
	targets, err := s.devices.ListActiveByPatient(ctx, p.ID)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("notifications: patient %s has no active devices", p.ID)
	}

	title := "KinéBilan"
	if n.Subject != nil && *n.Subject != "" {
		title = *n.Subject
	}

	accepted := 0
	var failures []string
	for _, d := range targets {
		msg := &messaging.Message{
			Token: d.Token,
			Notification: &messaging.Notification{
				Title: title,
				Body:  n.Message,
			},
		}
		if _, err := s.client.Send(ctx, msg); err != nil {
			if messaging.IsUnregistered(err) {
				if derr := s.devices.DeactivateByToken(ctx, d.Token); derr != nil && !errors.Is(derr, devices.ErrNotFound) {
					s.logger.Error("failed to deactivate dead token", "error", derr)
				}
			}
			failures = append(failures, err.Error())
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return fmt.Errorf("notifications: push rejected by all %d devices: %s",
			len(targets), strings.Join(failures, "; "))
	}
	s.logger.Info("push sent", "notification_id", n.ID, "accepted", accepted, "failed", len(failures))
	return nil
}
