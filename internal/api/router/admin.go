package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kinebilan/kinebilan-backend/internal/batchlock"
	"github.com/kinebilan/kinebilan-backend/internal/bilan"
	"github.com/kinebilan/kinebilan-backend/internal/doctolib"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// SyncRunner triggers one external sync. Satisfied by *doctolib.SyncService.
type SyncRunner interface {
	Sync(ctx context.Context, days int) (*doctolib.Result, error)
}

// ReconcileRunner triggers one reconciliation pass. Satisfied by
// *bilan.Reconciler.
type ReconcileRunner interface {
	Run(ctx context.Context, today time.Time) (*bilan.Result, error)
}

// AdminHandler exposes the manual batch triggers.
type AdminHandler struct {
	sync      SyncRunner
	reconcile ReconcileRunner
	logger    *logging.Logger
}

// NewAdminHandler creates the batch trigger handler.
func NewAdminHandler(sync SyncRunner, reconcile ReconcileRunner, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{sync: sync, reconcile: reconcile, logger: logger}
}

// Routes mounts the sync trigger. The reconciliation trigger lives under
// /appointments and is wired by the router.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Post("/sync", h.Sync)
}

type syncRequest struct {
	Days int `json:"days"`
}

// Sync runs one Doctolib sync synchronously and reports the result.
func (h *AdminHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	result, err := h.sync.Sync(r.Context(), req.Days)
	if err != nil {
		h.respondBatchError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CheckBilans runs one reconciliation pass synchronously.
func (h *AdminHandler) CheckBilans(w http.ResponseWriter, r *http.Request) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	result, err := h.reconcile.Run(r.Context(), today)
	if err != nil {
		h.respondBatchError(w, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) respondBatchError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, batchlock.ErrHeld) {
		http.Error(w, "another batch is running, retry later", http.StatusConflict)
		return
	}
	h.logger.Error("manual batch trigger failed", "op", op, "error", err)
	http.Error(w, op+" failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
