package patients

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// Handler handles HTTP requests for patients.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a new patients handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// PatientRequest is the JSON body for create/update.
type PatientRequest struct {
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Email            *string `json:"email"`
	Phone            *string `json:"phone"`
	BirthDate        *string `json:"birth_date"` // YYYY-MM-DD
	Address          *string `json:"address"`
	MedicalCondition *string `json:"medical_condition"`
	Notes            *string `json:"notes"`
	LastBilanDate    *string `json:"last_bilan_date"` // YYYY-MM-DD
}

func (r *PatientRequest) apply(p *Patient) error {
	if r.FirstName == "" && r.LastName == "" {
		return errors.New("first_name or last_name required")
	}
	p.FirstName = r.FirstName
	p.LastName = r.LastName
	p.Email = r.Email
	p.Phone = r.Phone
	p.Address = r.Address
	p.MedicalCondition = r.MedicalCondition
	p.Notes = r.Notes

	var err error
	if p.BirthDate, err = parseDatePtr(r.BirthDate); err != nil {
		return errors.New("birth_date must be YYYY-MM-DD")
	}
	if p.LastBilanDate, err = parseDatePtr(r.LastBilanDate); err != nil {
		return errors.New("last_bilan_date must be YYYY-MM-DD")
	}
	return nil
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create handles POST /patients.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var p Patient
	if err := req.apply(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.Create(r.Context(), nil, &p); err != nil {
		h.logger.Error("failed to create patient", "error", err)
		http.Error(w, "failed to create patient", http.StatusInternalServerError)
		return
	}

	h.logger.Info("patient created", "id", p.ID, "last_name", p.LastName)
	writeJSON(w, http.StatusCreated, p)
}

// Get handles GET /patients/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load patient", "error", err, "id", id)
		http.Error(w, "failed to load patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListResponse is the response for listing patients.
type ListResponse struct {
	Patients []Patient `json:"patients"`
	Count    int       `json:"count"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
}

// List handles GET /patients.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	list, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list patients", "error", err)
		http.Error(w, "failed to list patients", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Patients: list, Count: len(list), Offset: offset, Limit: limit})
}

// Update handles PUT /patients/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req PatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load patient", http.StatusInternalServerError)
		return
	}

	if err := req.apply(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.Update(r.Context(), p); err != nil {
		h.logger.Error("failed to update patient", "error", err, "id", id)
		http.Error(w, "failed to update patient", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /patients/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete patient", "error", err, "id", id)
		http.Error(w, "failed to delete patient", http.StatusInternalServerError)
		return
	}
	h.logger.Info("patient deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
