package bilan

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kinebilan/kinebilan-backend/internal/appointments"
	"github.com/kinebilan/kinebilan-backend/internal/batchlock"
	"github.com/kinebilan/kinebilan-backend/internal/notifications"
	"github.com/kinebilan/kinebilan-backend/internal/observability/metrics"
	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

const reconcileLockTTL = 5 * time.Minute

// TxBeginner opens transactions. Satisfied by pgxpool.Pool and pgxmock.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Locker serializes the reconciler against the external sync. A nil Locker
// disables exclusion (tests).
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (*batchlock.Lease, error)
}

// Result summarizes one reconciliation pass.
type Result struct {
	PatientsScanned      int `json:"patients_scanned"`
	PatientsDue          int `json:"patients_due"`
	Promotions           int `json:"promotions"`
	NotificationsCreated int `json:"notifications_created"`
}

// Reconciler walks every patient, finds those overdue for a bilan and
// converts their next scheduled appointment into one, or prompts them to
// book. The whole pass runs in a single transaction so a failure leaves no
// partial state.
type Reconciler struct {
	pool          TxBeginner
	patients      *patients.Store
	appointments  *appointments.Store
	notifications *notifications.Store
	lock          Locker
	maxDays       int
	metrics       *metrics.BatchMetrics
	logger        *logging.Logger
}

// NewReconciler creates a reconciler. metrics and logger may be nil.
func NewReconciler(
	pool TxBeginner,
	patientStore *patients.Store,
	appointmentStore *appointments.Store,
	notificationStore *notifications.Store,
	lock Locker,
	maxDays int,
	m *metrics.BatchMetrics,
	logger *logging.Logger,
) *Reconciler {
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		pool:          pool,
		patients:      patientStore,
		appointments:  appointmentStore,
		notifications: notificationStore,
		lock:          lock,
		maxDays:       maxDays,
		metrics:       m,
		logger:        logger,
	}
}

// Run executes one reconciliation pass for the given reference date. It
// refuses to run while a sync batch holds the lock, returning
// batchlock.ErrHeld. Re-running on unchanged data is a no-op: appointments
// already promoted are skipped.
func (r *Reconciler) Run(ctx context.Context, today time.Time) (*Result, error) {
	if r.lock != nil {
		lease, err := r.lock.Acquire(ctx, reconcileLockTTL)
		if err != nil {
			return nil, err
		}
		defer lease.Release(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bilan: begin reconcile: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	all, err := r.patients.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for i := range all {
		p := &all[i]
		result.PatientsScanned++

		due := IsDue(p.LastBilanDate, today, r.maxDays)
		r.metrics.ObserveReconcilePatient(due)
		if !due {
			continue
		}
		result.PatientsDue++

		if err := r.reconcilePatient(ctx, tx, p, today, result); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bilan: commit reconcile: %w", err)
	}

	r.logger.Info("reconciliation pass finished",
		"scanned", result.PatientsScanned,
		"due", result.PatientsDue,
		"promotions", result.Promotions,
		"notifications", result.NotificationsCreated)
	return result, nil
}

func (r *Reconciler) reconcilePatient(ctx context.Context, tx pgx.Tx, p *patients.Patient, today time.Time, result *Result) error {
	next, err := r.appointments.NextScheduled(ctx, tx, p.ID, today)
	if err != nil {
		return err
	}

	if next == nil {
		// Nothing booked: prompt the patient to schedule a bilan.
		subject, message := notifications.BilanReminderMessage(p.FirstName, nil, "")
		n := notifications.Notification{
			PatientID: p.ID,
			Channel:   notifications.ChannelEmail,
			Subject:   &subject,
			Message:   message,
		}
		if err := r.notifications.CreatePending(ctx, tx, &n); err != nil {
			return err
		}
		result.NotificationsCreated++
		return nil
	}

	if next.Kind == appointments.KindBilan {
		// Already converted by an earlier pass or by the sync.
		return nil
	}

	promoted, err := r.appointments.Promote(ctx, tx, next.ID)
	if err != nil {
		return err
	}
	if promoted {
		result.Promotions++
		r.metrics.ObservePromotion()
	}

	moved, err := r.patients.AdvanceLastBilan(ctx, tx, p.ID, next.Date)
	if err != nil {
		return err
	}
	if !moved {
		r.logger.Info("bilan date not advanced, appointment predates patient's last bilan",
			"patient_id", p.ID, "appointment_id", next.ID, "date", next.Date.Format(time.DateOnly))
	}

	subject, message := notifications.BilanReminderMessage(p.FirstName, &next.Date, next.Time)
	n := notifications.Notification{
		PatientID:     p.ID,
		AppointmentID: &next.ID,
		Channel:       notifications.ChannelEmail,
		Subject:       &subject,
		Message:       message,
	}
	if err := r.notifications.CreatePending(ctx, tx, &n); err != nil {
		return err
	}
	result.NotificationsCreated++

	r.logger.Info("appointment promoted to bilan",
		"patient_id", p.ID, "appointment_id", next.ID, "date", next.Date.Format(time.DateOnly))
	return nil
}
