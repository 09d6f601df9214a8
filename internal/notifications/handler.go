package notifications

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kinebilan/kinebilan-backend/internal/appointments"
	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// Handler exposes notification queueing and processing over HTTP.
type Handler struct {
	service   *Service
	store     *Store
	processor *Processor
	logger    *logging.Logger
}

// NewHandler creates a notification handler.
func NewHandler(service *Service, store *Store, processor *Processor, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, store: store, processor: processor, logger: logger}
}

// Routes mounts the notification endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/notifications", h.Notify)
	r.Post("/notifications/reminder", h.Reminder)
	r.Post("/notifications/bilan-alert", h.BilanAlert)
	r.Post("/notifications/process", h.Process)
}

type notifyRequest struct {
	PatientID     string    `json:"patient_id"`
	Message       string    `json:"message"`
	Subject       *string   `json:"subject"`
	Channels      []Channel `json:"channels"`
	AppointmentID *string   `json:"appointment_id"`
}

// Notify queues a free-form notification for a patient.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	pid, err := uuid.Parse(req.PatientID)
	if err != nil {
		http.Error(w, "invalid patient_id", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	var apptID *uuid.UUID
	if req.AppointmentID != nil {
		parsed, err := uuid.Parse(*req.AppointmentID)
		if err != nil {
			http.Error(w, "invalid appointment_id", http.StatusBadRequest)
			return
		}
		apptID = &parsed
	}

	created, err := h.service.NotifyPatient(r.Context(), pid, req.Message, req.Subject, req.Channels, apptID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type reminderRequest struct {
	AppointmentID string    `json:"appointment_id"`
	Message       string    `json:"message"`
	Channels      []Channel `json:"channels"`
}

// Reminder queues an appointment reminder.
func (h *Handler) Reminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	apptID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		http.Error(w, "invalid appointment_id", http.StatusBadRequest)
		return
	}

	created, err := h.service.SendAppointmentReminder(r.Context(), apptID, req.Message, req.Channels)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type bilanAlertRequest struct {
	PatientID   string    `json:"patient_id"`
	DaysOverdue int       `json:"days_overdue"`
	Channels    []Channel `json:"channels"`
}

// BilanAlert queues an overdue-assessment alert.
func (h *Handler) BilanAlert(w http.ResponseWriter, r *http.Request) {
	var req bilanAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	pid, err := uuid.Parse(req.PatientID)
	if err != nil {
		http.Error(w, "invalid patient_id", http.StatusBadRequest)
		return
	}

	created, err := h.service.SendBilanAlert(r.Context(), pid, req.DaysOverdue, req.Channels)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Process drains the pending backlog synchronously and reports the tally.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	result, err := h.processor.ProcessPending(r.Context())
	if err != nil {
		h.logger.Error("manual notification processing failed", "error", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListByPatient returns a patient's notification history. Mounted by the
// router under /patients/{id}/notifications.
func (h *Handler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	pid, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	list, err := h.store.ListByPatient(r.Context(), pid, 0)
	if err != nil {
		h.logger.Error("notification listing failed", "error", err, "patient_id", pid)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, patients.ErrNotFound):
		http.Error(w, "patient not found", http.StatusNotFound)
	case errors.Is(err, appointments.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, ErrUnknownChannel):
		http.Error(w, "channels must be email, sms or push", http.StatusBadRequest)
	default:
		h.logger.Error("notification request failed", "error", err)
		http.Error(w, "failed to queue notification", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
