package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no patient matches the given id.
var ErrNotFound = errors.New("patients: not found")

// Querier abstracts the pgx query interface so store methods can run against
// the pool or an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const patientColumns = `id, doctolib_id, first_name, last_name, email, phone, birth_date,
	address, medical_condition, notes, last_bilan_date, created_at, updated_at`

// Store provides CRUD operations for patients.
type Store struct {
	pool Querier
}

// NewStore creates a patient store.
func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

func (s *Store) querier(q Querier) Querier {
	if q == nil {
		return s.pool
	}
	return q
}

// Create inserts a new patient.
func (s *Store) Create(ctx context.Context, q Querier, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.querier(q).Exec(ctx, `
		INSERT INTO patients (id, doctolib_id, first_name, last_name, email, phone, birth_date,
			address, medical_condition, notes, last_bilan_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.DoctolibID, p.FirstName, p.LastName, p.Email, p.Phone, p.BirthDate,
		p.Address, p.MedicalCondition, p.Notes, p.LastBilanDate, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("patients: create: %w", err)
	}
	return nil
}

// GetByID loads a single patient. Returns ErrNotFound when the id is unknown.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patients: get: %w", err)
	}
	return p, nil
}

// FindByName looks up a patient by exact first and last name. Returns
// (nil, nil) when no patient matches.
func (s *Store) FindByName(ctx context.Context, q Querier, firstName, lastName string) (*Patient, error) {
	row := s.querier(q).QueryRow(ctx, `
		SELECT `+patientColumns+` FROM patients
		WHERE first_name = $1 AND last_name = $2
		LIMIT 1`, firstName, lastName)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("patients: find by name: %w", err)
	}
	return p, nil
}

// List returns patients ordered by name.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Patient, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+patientColumns+` FROM patients
		ORDER BY last_name, first_name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("patients: list: %w", err)
	}
	defer rows.Close()
	return scanPatients(rows)
}

// ListAll returns every patient. Used by the reconciliation pass, which must
// consider the full patient set.
func (s *Store) ListAll(ctx context.Context, q Querier) ([]Patient, error) {
	rows, err := s.querier(q).Query(ctx, `
		SELECT `+patientColumns+` FROM patients
		ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("patients: list all: %w", err)
	}
	defer rows.Close()
	return scanPatients(rows)
}

// Update saves mutable patient fields.
func (s *Store) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE patients
		SET first_name = $2, last_name = $3, email = $4, phone = $5, birth_date = $6,
			address = $7, medical_condition = $8, notes = $9, last_bilan_date = $10, updated_at = $11
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.BirthDate,
		p.Address, p.MedicalCondition, p.Notes, p.LastBilanDate, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("patients: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a patient. Appointments, notifications and devices follow by
// foreign-key cascade.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("patients: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceLastBilan moves a patient's last bilan date forward to the given
// date. The update is forward-only: an older date never overwrites a newer
// one. Reports whether the row changed.
func (s *Store) AdvanceLastBilan(ctx context.Context, q Querier, id uuid.UUID, date time.Time) (bool, error) {
	tag, err := s.querier(q).Exec(ctx, `
		UPDATE patients
		SET last_bilan_date = $2, updated_at = now()
		WHERE id = $1 AND (last_bilan_date IS NULL OR last_bilan_date < $2)`,
		id, date)
	if err != nil {
		return false, fmt.Errorf("patients: advance last bilan: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.DoctolibID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.BirthDate,
		&p.Address, &p.MedicalCondition, &p.Notes, &p.LastBilanDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPatients(rows pgx.Rows) ([]Patient, error) {
	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}
