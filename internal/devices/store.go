package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no device matches the given id.
var ErrNotFound = errors.New("devices: not found")

// Querier abstracts the pgx query interface so store methods can run against
// the pool or an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const deviceColumns = `id, patient_id, name, device_type, token, active, last_used, created_at, updated_at`

// Store persists registered push devices.
type Store struct {
	pool Querier
}

// NewStore creates a device store.
func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

// Upsert registers a device by token. A token already on file is refreshed,
// reattached to the given patient and reactivated.
func (s *Store) Upsert(ctx context.Context, d *Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	d.Active = true
	d.LastUsed = now

	row := s.pool.QueryRow(ctx, `
		INSERT INTO user_devices (id, patient_id, name, device_type, token, active, last_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6, $6)
		ON CONFLICT (token) DO UPDATE
		SET patient_id = EXCLUDED.patient_id,
			name = EXCLUDED.name,
			device_type = EXCLUDED.device_type,
			active = TRUE,
			last_used = EXCLUDED.last_used,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		d.ID, d.PatientID, d.Name, string(d.Type), d.Token, now,
	)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("devices: upsert: %w", err)
	}
	d.UpdatedAt = now
	return nil
}

// ListActiveByPatient returns the patient's active push targets.
func (s *Store) ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]Device, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deviceColumns+` FROM user_devices
		WHERE patient_id = $1 AND active
		ORDER BY last_used DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("devices: list active: %w", err)
	}
	defer rows.Close()

	var result []Device
	for rows.Next() {
		var d Device
		var deviceType string
		err := rows.Scan(&d.ID, &d.PatientID, &d.Name, &deviceType, &d.Token,
			&d.Active, &d.LastUsed, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("devices: scan: %w", err)
		}
		d.Type = DeviceType(deviceType)
		result = append(result, d)
	}
	return result, rows.Err()
}

// Deactivate retires a device without deleting it, so a later registration
// of the same token can revive the row.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_devices
		SET active = FALSE, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("devices: deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateByToken retires a device by its push token. Used when the push
// provider reports the token as no longer registered.
func (s *Store) DeactivateByToken(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_devices
		SET active = FALSE, updated_at = now()
		WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("devices: deactivate by token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
