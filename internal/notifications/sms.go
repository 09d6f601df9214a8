package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

var smsTracer = otel.Tracer("kinebilan.internal.notifications.sms")

// SMSConfig holds Twilio configuration.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// SMSSender delivers notifications over SMS using Twilio's REST API. Each
// message gets a single attempt; a failure settles the notification as
// failed rather than retrying.
type SMSSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewSMSSender creates the SMS channel sender. Without credentials the
// channel is disabled and every send fails with a configuration error.
func NewSMSSender(cfg SMSConfig, logger *logging.Logger) Sender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return NewDisabledSender(ChannelSMS, "twilio credentials not set")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SMSSender{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    "https://api.twilio.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Send delivers one SMS. Fails when the patient has no phone on file.
func (s *SMSSender) Send(ctx context.Context, p *patients.Patient, n *Notification) error {
	if p.Phone == nil || *p.Phone == "" {
		return fmt.Errorf("notifications: patient %s has no phone on file", p.ID)
	}
	to := NormalizePhone(*p.Phone)

	ctx, span := smsTracer.Start(ctx, "notifications.sms.send")
	defer span.End()
	span.SetAttributes(attribute.String("kinebilan.notification_id", n.ID.String()))

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", s.from)
	payload.Set("Body", n.Message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return fmt.Errorf("notifications: twilio request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("notifications: twilio send: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("notifications: twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
		span.RecordError(err)
		return err
	}

	s.logger.Info("sms sent", "notification_id", n.ID)
	return nil
}

// NormalizePhone converts French local numbers (10 digits, leading 0) to
// E.164. Numbers already carrying a country prefix pass through untouched.
func NormalizePhone(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '+' {
			return r
		}
		return -1
	}, phone)
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	if len(cleaned) == 10 && strings.HasPrefix(cleaned, "0") {
		return "+33" + cleaned[1:]
	}
	return cleaned
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
