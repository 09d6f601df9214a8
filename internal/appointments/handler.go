package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// Handler handles HTTP requests for appointments.
type Handler struct {
	store   *Store
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new appointments handler.
func NewHandler(store *Store, service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, service: service, logger: logger}
}

var timeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// AppointmentRequest is the JSON body for create/update.
type AppointmentRequest struct {
	PatientID    string  `json:"patient_id"`
	Date         string  `json:"date"` // YYYY-MM-DD
	Time         string  `json:"time"` // HH:MM
	DurationMins int     `json:"duration_mins"`
	Status       string  `json:"status"`
	Kind         string  `json:"kind"`
	Notes        *string `json:"notes"`
}

func (r *AppointmentRequest) apply(a *Appointment) error {
	if r.PatientID != "" {
		pid, err := uuid.Parse(r.PatientID)
		if err != nil {
			return errors.New("patient_id must be a UUID")
		}
		a.PatientID = pid
	}
	if a.PatientID == uuid.Nil {
		return errors.New("patient_id required")
	}
	date, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return errors.New("date must be YYYY-MM-DD")
	}
	a.Date = date
	if !timeRe.MatchString(r.Time) {
		return errors.New("time must be HH:MM")
	}
	a.Time = r.Time
	if r.DurationMins != 0 {
		a.DurationMins = r.DurationMins
	}
	if r.Status != "" {
		switch Status(r.Status) {
		case StatusScheduled, StatusCompleted, StatusCancelled, StatusMissed:
			a.Status = Status(r.Status)
		default:
			return errors.New("invalid status")
		}
	}
	if r.Kind != "" {
		switch Kind(r.Kind) {
		case KindRegular, KindBilan:
			a.Kind = Kind(r.Kind)
		default:
			return errors.New("invalid kind")
		}
	}
	a.Notes = r.Notes
	return nil
}

// apiAppointment adds the derived is_bilan flag kept for older clients.
type apiAppointment struct {
	Appointment
	IsBilan bool `json:"is_bilan"`
}

func toAPI(a Appointment) apiAppointment {
	return apiAppointment{Appointment: a, IsBilan: a.Kind == KindBilan}
}

// Create handles POST /appointments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req AppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var a Appointment
	if err := req.apply(&a); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.Create(r.Context(), nil, &a); err != nil {
		h.logger.Error("failed to create appointment", "error", err)
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	// A manually created bilan advances the patient's last bilan date the
	// same way a promotion does.
	if a.Kind == KindBilan && h.service != nil {
		if _, err := h.service.MarkBilan(r.Context(), a.ID); err != nil {
			h.logger.Error("failed to record bilan date", "error", err, "id", a.ID)
		}
	}

	h.logger.Info("appointment created", "id", a.ID, "patient_id", a.PatientID)
	writeJSON(w, http.StatusCreated, toAPI(a))
}

// Get handles GET /appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	a, err := h.store.GetByID(r.Context(), nil, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load appointment", "error", err, "id", id)
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAPI(*a))
}

// ListByPatient handles GET /patients/{id}/appointments.
func (h *Handler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	pid, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	list, err := h.store.ListByPatient(r.Context(), pid)
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err, "patient_id", pid)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	out := make([]apiAppointment, 0, len(list))
	for _, a := range list {
		out = append(out, toAPI(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out, "count": len(out)})
}

// List handles GET /appointments. The window defaults to the coming month
// and can be narrowed with ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := today, today.AddDate(0, 0, 30)
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		to = d
	}
	list, err := h.store.ListByDateRange(r.Context(), from, to)
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	out := make([]apiAppointment, 0, len(list))
	for _, a := range list {
		out = append(out, toAPI(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out, "count": len(out)})
}

// Update handles PUT /appointments/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req AppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.store.GetByID(r.Context(), nil, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	wasBilan := a.Kind == KindBilan
	if err := req.apply(a); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.Update(r.Context(), nil, a); err != nil {
		h.logger.Error("failed to update appointment", "error", err, "id", id)
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}

	if !wasBilan && a.Kind == KindBilan && h.service != nil {
		if _, err := h.service.MarkBilan(r.Context(), a.ID); err != nil {
			h.logger.Error("failed to record bilan date", "error", err, "id", a.ID)
		}
	}

	writeJSON(w, http.StatusOK, toAPI(*a))
}

// MarkBilan handles PUT /appointments/{id}/bilan.
func (h *Handler) MarkBilan(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	a, err := h.service.MarkBilan(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to mark bilan", "error", err, "id", id)
		http.Error(w, "failed to mark bilan", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAPI(*a))
}

// Delete handles DELETE /appointments/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete appointment", "error", err, "id", id)
		http.Error(w, "failed to delete appointment", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
