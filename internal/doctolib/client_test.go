package doctolib

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAppointments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/appointments", r.URL.Path)
		var req fetchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cabinet@example.fr", req.Email)
		assert.Equal(t, "01/04/2025", req.FromDate)
		assert.Equal(t, "01/05/2025", req.ToDate)

		_ = json.NewEncoder(w).Encode(fetchResponse{
			Success: true,
			Appointments: []FeedAppointment{
				{ExternalID: "dc-1", PatientName: "DUPONT Marie", Date: "03/04/2025", Time: "10:00", Reason: "Séance"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "cabinet@example.fr", "secret")
	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	feed, err := client.FetchAppointments(context.Background(), from, from.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "dc-1", feed[0].ExternalID)
	assert.Equal(t, "DUPONT Marie", feed[0].PatientName)
}

func TestFetchAppointmentsSidecarError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(fetchResponse{Success: false, Error: "login failed"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "cabinet@example.fr", "wrong")
	_, err := client.FetchAppointments(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
}

func TestCancelAppointment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/appointments/cancel", r.URL.Path)
		var req cancelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "dc-1", req.ExternalID)
		assert.NotEmpty(t, req.Reason)
		_ = json.NewEncoder(w).Encode(cancelResponse{Success: true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "cabinet@example.fr", "secret")
	require.NoError(t, client.CancelAppointment(context.Background(), "dc-1", "bilan requis"))
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok", BrowserReady: true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "")
	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.BrowserReady)
}
