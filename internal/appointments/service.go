package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// TxBeginner opens transactions. Satisfied by pgxpool.Pool and pgxmock.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PatientDater advances a patient's last bilan date.
type PatientDater interface {
	AdvanceLastBilan(ctx context.Context, q patients.Querier, id uuid.UUID, date time.Time) (bool, error)
}

// Service wraps appointment mutations that touch patient state.
type Service struct {
	pool     TxBeginner
	store    *Store
	patients PatientDater
	logger   *logging.Logger
}

// NewService creates an appointment service.
func NewService(pool TxBeginner, store *Store, patients PatientDater, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{pool: pool, store: store, patients: patients, logger: logger}
}

// MarkBilan promotes an appointment to a bilan and advances the owning
// patient's last bilan date, atomically. The date only moves forward: a bilan
// dated before the patient's current last bilan leaves the patient untouched.
func (s *Service) MarkBilan(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin mark bilan: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := s.store.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if a.Kind != KindBilan {
		if _, err := s.store.Promote(ctx, tx, id); err != nil {
			return nil, err
		}
		a.Kind = KindBilan
	}

	moved, err := s.patients.AdvanceLastBilan(ctx, tx, a.PatientID, a.Date)
	if err != nil {
		return nil, err
	}
	if !moved {
		s.logger.Info("bilan date not advanced, appointment predates patient's last bilan",
			"appointment_id", id, "patient_id", a.PatientID, "date", a.Date.Format(time.DateOnly))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit mark bilan: %w", err)
	}
	return a, nil
}
