package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no appointment matches the given id.
var ErrNotFound = errors.New("appointments: not found")

// Querier abstracts the pgx query interface so store methods can run against
// the pool or an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, doctolib_id, patient_id, date, time, duration_mins,
	status, kind, notes, created_at, updated_at`

// Store provides CRUD operations for appointments.
type Store struct {
	pool Querier
}

// NewStore creates an appointment store.
func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

func (s *Store) querier(q Querier) Querier {
	if q == nil {
		return s.pool
	}
	return q
}

// Create inserts a new appointment.
func (s *Store) Create(ctx context.Context, q Querier, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.DurationMins <= 0 {
		a.DurationMins = 30
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Kind == "" {
		a.Kind = KindRegular
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.querier(q).Exec(ctx, `
		INSERT INTO appointments (id, doctolib_id, patient_id, date, time, duration_mins,
			status, kind, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.DoctolibID, a.PatientID, a.Date, a.Time, a.DurationMins,
		string(a.Status), string(a.Kind), a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// GetByID loads a single appointment. Returns ErrNotFound when unknown.
func (s *Store) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*Appointment, error) {
	row := s.querier(q).QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return a, nil
}

// GetByDoctolibID loads an appointment by its external reference. Returns
// (nil, nil) when no appointment carries that reference.
func (s *Store) GetByDoctolibID(ctx context.Context, q Querier, doctolibID string) (*Appointment, error) {
	row := s.querier(q).QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE doctolib_id = $1`, doctolibID)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("appointments: get by doctolib id: %w", err)
	}
	return a, nil
}

// ListByPatient returns all appointments for a patient, newest first.
func (s *Store) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, time DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by patient: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// NextScheduled returns the patient's earliest scheduled appointment strictly
// after the given instant, or (nil, nil) when there is none. Slots earlier on
// from's own day whose time has already passed are excluded.
func (s *Store) NextScheduled(ctx context.Context, q Querier, patientID uuid.UUID, from time.Time) (*Appointment, error) {
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	row := s.querier(q).QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE patient_id = $1 AND status = 'scheduled'
		  AND (date > $2 OR (date = $2 AND time > $3))
		ORDER BY date, time
		LIMIT 1`, patientID, day, from.Format("15:04"))
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("appointments: next scheduled: %w", err)
	}
	return a, nil
}

// ListByDateRange returns appointments with from <= date <= to, in agenda
// order.
func (s *Store) ListByDateRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE date >= $1 AND date <= $2
		ORDER BY date, time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by date range: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ScheduledOn returns all scheduled appointments for a given calendar date.
// Used by the reminder task.
func (s *Store) ScheduledOn(ctx context.Context, date time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE date = $1 AND status = 'scheduled'
		ORDER BY time`, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: scheduled on: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// Update saves mutable appointment fields.
func (s *Store) Update(ctx context.Context, q Querier, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := s.querier(q).Exec(ctx, `
		UPDATE appointments
		SET date = $2, time = $3, duration_mins = $4, status = $5, kind = $6, notes = $7, updated_at = $8
		WHERE id = $1`,
		a.ID, a.Date, a.Time, a.DurationMins, string(a.Status), string(a.Kind), a.Notes, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Promote flips a regular appointment to a bilan. The guard on kind makes a
// second promotion of the same appointment a no-op; reports whether the row
// changed.
func (s *Store) Promote(ctx context.Context, q Querier, id uuid.UUID) (bool, error) {
	tag, err := s.querier(q).Exec(ctx, `
		UPDATE appointments
		SET kind = 'bilan', updated_at = now()
		WHERE id = $1 AND kind = 'regular'`, id)
	if err != nil {
		return false, fmt.Errorf("appointments: promote: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCancelled transitions a scheduled appointment to cancelled. Reports
// whether the row changed.
func (s *Store) MarkCancelled(ctx context.Context, q Querier, id uuid.UUID) (bool, error) {
	tag, err := s.querier(q).Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'scheduled'`, id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark cancelled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes an appointment.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, kind string
	err := row.Scan(
		&a.ID, &a.DoctolibID, &a.PatientID, &a.Date, &a.Time, &a.DurationMins,
		&status, &kind, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.Kind = Kind(kind)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}
