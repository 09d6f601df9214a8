package reports

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kinebilan/kinebilan-backend/internal/bilan"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// Handler exposes report endpoints.
type Handler struct {
	store   *Store
	maxDays int
	logger  *logging.Logger
}

// NewHandler creates a report handler.
func NewHandler(store *Store, maxDays int, logger *logging.Logger) *Handler {
	if maxDays <= 0 {
		maxDays = bilan.DefaultMaxDays
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, maxDays: maxDays, logger: logger}
}

// Routes mounts the report endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/reports/dashboard", h.Dashboard)
	r.Get("/reports/appointments/monthly", h.MonthlyAppointments)
	r.Get("/reports/bilans/status", h.BilanStatus)
	r.Get("/reports/notifications", h.NotificationStats)
}

// Dashboard returns the main practice counters. The configured overdue
// threshold can be overridden per request with ?max_days=N.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	maxDays := h.maxDays
	if raw := r.URL.Query().Get("max_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "max_days must be a positive integer", http.StatusBadRequest)
			return
		}
		maxDays = parsed
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	d, err := h.store.GetDashboard(r.Context(), today, maxDays)
	if err != nil {
		h.logger.Error("dashboard query failed", "error", err)
		http.Error(w, "failed to compute dashboard", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d)
}

// MonthlyAppointments returns the per-month appointment breakdown for a
// year, default the current one (?year=N).
func (h *Handler) MonthlyAppointments(w http.ResponseWriter, r *http.Request) {
	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 2200 {
			http.Error(w, "year must be a valid year", http.StatusBadRequest)
			return
		}
		year = parsed
	}

	stats, err := h.store.MonthlyAppointments(r.Context(), year)
	if err != nil {
		h.logger.Error("monthly report query failed", "error", err, "year", year)
		http.Error(w, "failed to compute monthly report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// BilanStatus returns the assessment-compliance overview of the patient
// base (?max_days=N overrides the threshold).
func (h *Handler) BilanStatus(w http.ResponseWriter, r *http.Request) {
	maxDays := h.maxDays
	if raw := r.URL.Query().Get("max_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "max_days must be a positive integer", http.StatusBadRequest)
			return
		}
		maxDays = parsed
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	b, err := h.store.GetBilanStatus(r.Context(), today, maxDays)
	if err != nil {
		h.logger.Error("bilan status query failed", "error", err)
		http.Error(w, "failed to compute bilan status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(b)
}

// NotificationStats returns notification counts by channel and status over
// the trailing window (?days=N, default 30).
func (h *Handler) NotificationStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	stats, err := h.store.GetNotificationStats(r.Context(), since)
	if err != nil {
		h.logger.Error("notification stats query failed", "error", err)
		http.Error(w, "failed to compute notification stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
