package devices

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// Handler exposes device registration over HTTP.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a device handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes mounts the device endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/devices", h.Register)
	r.Delete("/devices/{id}", h.Deactivate)
}

type registerRequest struct {
	PatientID  *string `json:"patient_id"`
	Name       *string `json:"name"`
	DeviceType string  `json:"device_type"`
	Token      string  `json:"token"`
}

// Register upserts a push token. Re-registering an existing token refreshes
// it rather than duplicating it, so the response is 200 rather than 201.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	deviceType := DeviceType(req.DeviceType)
	if !deviceType.Valid() {
		http.Error(w, "device_type must be android, ios or web", http.StatusBadRequest)
		return
	}

	d := Device{Name: req.Name, Type: deviceType, Token: req.Token}
	if req.PatientID != nil {
		pid, err := uuid.Parse(*req.PatientID)
		if err != nil {
			http.Error(w, "invalid patient_id", http.StatusBadRequest)
			return
		}
		d.PatientID = &pid
	}

	if err := h.store.Upsert(r.Context(), &d); err != nil {
		h.logger.Error("device registration failed", "error", err)
		http.Error(w, "failed to register device", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Deactivate retires a device.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid device id", http.StatusBadRequest)
		return
	}
	if err := h.store.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "device not found", http.StatusNotFound)
			return
		}
		h.logger.Error("device deactivation failed", "error", err, "id", id)
		http.Error(w, "failed to deactivate device", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListByPatient returns the patient's active devices. Mounted by the router
// under /patients/{id}/devices.
func (h *Handler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	pid, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	list, err := h.store.ListActiveByPatient(r.Context(), pid)
	if err != nil {
		h.logger.Error("device listing failed", "error", err, "patient_id", pid)
		http.Error(w, "failed to list devices", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []Device{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
