package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no notification matches the given id.
var ErrNotFound = errors.New("notifications: not found")

// Querier abstracts the pgx query interface so store methods can run against
// the pool or an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const notificationColumns = `id, patient_id, appointment_id, channel, subject,
	message, status, error, sent_at, created_at`

// Store persists queued notifications.
type Store struct {
	pool Querier
}

// NewStore creates a notification store.
func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

func (s *Store) querier(q Querier) Querier {
	if q == nil {
		return s.pool
	}
	return q
}

// CreatePending inserts a new pending notification.
func (s *Store) CreatePending(ctx context.Context, q Querier, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.Status = StatusPending
	n.CreatedAt = time.Now().UTC()

	_, err := s.querier(q).Exec(ctx, `
		INSERT INTO notifications (id, patient_id, appointment_id, channel, subject, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)`,
		n.ID, n.PatientID, n.AppointmentID, string(n.Channel), n.Subject, n.Message, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("notifications: create: %w", err)
	}
	return nil
}

// GetByID loads a single notification.
func (s *Store) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*Notification, error) {
	row := s.querier(q).QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("notifications: get: %w", err)
	}
	return n, nil
}

// ListPending returns pending notifications for one channel, oldest first.
func (s *Store) ListPending(ctx context.Context, channel Channel, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'pending' AND channel = $1
		ORDER BY created_at
		LIMIT $2`, string(channel), limit)
	if err != nil {
		return nil, fmt.Errorf("notifications: list pending: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ListByPatient returns a patient's notifications, newest first.
func (s *Store) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("notifications: list by patient: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// CountPending returns the number of undelivered notifications.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("notifications: count pending: %w", err)
	}
	return n, nil
}

// MarkSent settles a pending notification as delivered. The status guard makes
// this a no-op on rows another worker already settled; reports whether the row
// changed.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'sent', sent_at = now(), error = NULL
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("notifications: mark sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed settles a pending notification as failed, recording the cause.
// Same guard as MarkSent: terminal states never change again.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, cause string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'failed', error = $2
		WHERE id = $1 AND status = 'pending'`, id, cause)
	if err != nil {
		return false, fmt.Errorf("notifications: mark failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var channel, status string
	err := row.Scan(
		&n.ID, &n.PatientID, &n.AppointmentID, &channel, &n.Subject,
		&n.Message, &status, &n.Error, &n.SentAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Channel = Channel(channel)
	n.Status = Status(status)
	return &n, nil
}

func scanNotifications(rows pgx.Rows) ([]Notification, error) {
	var result []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("notifications: scan: %w", err)
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}
