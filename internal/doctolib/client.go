// Package doctolib synchronizes appointments from the Doctolib account of
// the practice. Scraping runs in a headless-browser sidecar service; this
// package talks to it over HTTP and folds the feed into local state.
package doctolib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// FeedAppointment is one appointment as scraped from the Doctolib agenda.
// Dates are DD/MM/YYYY and times HH:MM, as displayed by Doctolib; the sync
// service validates and parses them.
type FeedAppointment struct {
	ExternalID  string `json:"externalId"`
	PatientName string `json:"patientName"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Reason      string `json:"reason,omitempty"`
}

type fetchRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FromDate string `json:"fromDate"` // DD/MM/YYYY
	ToDate   string `json:"toDate"`   // DD/MM/YYYY
	Timeout  int    `json:"timeout,omitempty"` // milliseconds
}

type fetchResponse struct {
	Success      bool              `json:"success"`
	Appointments []FeedAppointment `json:"appointments"`
	ScrapedAt    string            `json:"scrapedAt"`
	Error        string            `json:"error,omitempty"`
}

type cancelRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	ExternalID string `json:"externalId"`
	Reason     string `json:"reason,omitempty"`
}

type cancelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the health check response from the sidecar.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	BrowserReady bool   `json:"browserReady"`
	Uptime       int    `json:"uptime"` // seconds
}

// Client is an HTTP client for the Doctolib scraper sidecar.
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a sidecar client. Scraping sessions are slow, so the
// default timeout is generous.
func NewClient(baseURL, email, password string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  baseURL,
		email:    email,
		password: password,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks the health of the scraper sidecar.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("doctolib: create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doctolib: health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("doctolib: health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("doctolib: decode health response: %w", err)
	}
	return &health, nil
}

// FetchAppointments scrapes the agenda between the two dates, inclusive.
func (c *Client) FetchAppointments(ctx context.Context, from, to time.Time) ([]FeedAppointment, error) {
	payload := fetchRequest{
		Email:    c.email,
		Password: c.password,
		FromDate: from.Format("02/01/2006"),
		ToDate:   to.Format("02/01/2006"),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("doctolib: marshal request: %w", err)
	}

	c.logger.Debug("fetching appointments", "from", payload.FromDate, "to", payload.ToDate)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/appointments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("doctolib: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("doctolib: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("doctolib: decode response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("doctolib: fetch failed: %s", result.Error)
	}

	c.logger.Info("appointments fetched", "count", len(result.Appointments))
	return result.Appointments, nil
}

// CancelAppointment cancels one appointment on Doctolib. The caller must not
// touch local state unless this returns nil: a cancellation that only
// happened locally would resurrect on the next sync.
func (c *Client) CancelAppointment(ctx context.Context, externalID, reason string) error {
	payload := cancelRequest{
		Email:      c.email,
		Password:   c.password,
		ExternalID: externalID,
		Reason:     reason,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("doctolib: marshal cancel request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/appointments/cancel", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("doctolib: create cancel request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("doctolib: cancel request failed: %w", err)
	}
	defer resp.Body.Close()

	var result cancelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("doctolib: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("doctolib: cancel failed: %s", result.Error)
	}

	c.logger.Info("appointment cancelled on doctolib", "external_id", externalID)
	return nil
}
