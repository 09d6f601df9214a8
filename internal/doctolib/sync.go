package doctolib

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kinebilan/kinebilan-backend/internal/appointments"
	"github.com/kinebilan/kinebilan-backend/internal/batchlock"
	"github.com/kinebilan/kinebilan-backend/internal/bilan"
	"github.com/kinebilan/kinebilan-backend/internal/notifications"
	"github.com/kinebilan/kinebilan-backend/internal/observability/metrics"
	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

const (
	syncLockTTL = 10 * time.Minute

	autoCancelReason = "Besoin d'un bilan obligatoire avant de poursuivre les soins"
)

// Fetcher is the sidecar surface the sync needs. Satisfied by *Client.
type Fetcher interface {
	FetchAppointments(ctx context.Context, from, to time.Time) ([]FeedAppointment, error)
	CancelAppointment(ctx context.Context, externalID, reason string) error
}

// TxBeginner opens transactions. Satisfied by pgxpool.Pool and pgxmock.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Locker serializes the sync against the reconciliation pass. A nil Locker
// disables exclusion (tests).
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (*batchlock.Lease, error)
}

// Result summarizes one sync run.
type Result struct {
	Total                 int      `json:"total_appointments"`
	NewAppointments       int      `json:"new_appointments"`
	UpdatedAppointments   int      `json:"updated_appointments"`
	NewPatients           int      `json:"new_patients"`
	CancelledAppointments int      `json:"cancelled_appointments"`
	Errors                []string `json:"errors"`
}

// SyncService folds the Doctolib feed into local patients and appointments.
// Records are matched by their Doctolib id, so re-running the same feed
// changes nothing.
type SyncService struct {
	client        Fetcher
	pool          TxBeginner
	patients      *patients.Store
	appointments  *appointments.Store
	notifications *notifications.Store
	lock          Locker
	classifier    *bilan.Classifier
	maxDays       int
	autoCancel    bool
	metrics       *metrics.BatchMetrics
	logger        *logging.Logger
}

// SyncConfig carries the policy knobs for the sync service.
type SyncConfig struct {
	MaxDays    int
	Keywords   []string
	AutoCancel bool
}

// NewSyncService creates a sync service. metrics and logger may be nil.
func NewSyncService(
	client Fetcher,
	pool TxBeginner,
	patientStore *patients.Store,
	appointmentStore *appointments.Store,
	notificationStore *notifications.Store,
	lock Locker,
	cfg SyncConfig,
	m *metrics.BatchMetrics,
	logger *logging.Logger,
) *SyncService {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = bilan.DefaultMaxDays
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SyncService{
		client:        client,
		pool:          pool,
		patients:      patientStore,
		appointments:  appointmentStore,
		notifications: notificationStore,
		lock:          lock,
		classifier:    bilan.NewClassifier(cfg.Keywords),
		maxDays:       cfg.MaxDays,
		autoCancel:    cfg.AutoCancel,
		metrics:       m,
		logger:        logger,
	}
}

// Sync fetches the feed for the next days days and folds it into local
// state. Malformed records are reported in Result.Errors and skipped; the
// batch continues. Database errors abort the run and roll everything back.
func (s *SyncService) Sync(ctx context.Context, days int) (*Result, error) {
	if days <= 0 {
		days = 30
	}
	if s.lock != nil {
		lease, err := s.lock.Acquire(ctx, syncLockTTL)
		if err != nil {
			return nil, err
		}
		defer lease.Release(ctx)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	feed, err := s.client.FetchAppointments(ctx, today, today.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("doctolib: begin sync: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result := &Result{Total: len(feed), Errors: []string{}}
	for _, rec := range feed {
		if err := s.syncRecord(ctx, tx, rec, today, result); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("doctolib: commit sync: %w", err)
	}

	s.logger.Info("sync finished",
		"total", result.Total,
		"new", result.NewAppointments,
		"updated", result.UpdatedAppointments,
		"new_patients", result.NewPatients,
		"cancelled", result.CancelledAppointments,
		"errors", len(result.Errors))
	return result, nil
}

// syncRecord folds one feed record. A malformed record lands in
// result.Errors and returns nil; only database errors propagate.
func (s *SyncService) syncRecord(ctx context.Context, tx pgx.Tx, rec FeedAppointment, today time.Time, result *Result) error {
	if rec.ExternalID == "" || rec.PatientName == "" || rec.Date == "" || rec.Time == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("incomplete record: %+v", rec))
		s.metrics.ObserveSyncRecord("error")
		return nil
	}

	date, err := time.Parse("02/01/2006", rec.Date)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("bad date/time %q %q for %s", rec.Date, rec.Time, rec.ExternalID))
		s.metrics.ObserveSyncRecord("error")
		return nil
	}
	parsedTime, err := time.Parse("15:04", rec.Time)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("bad date/time %q %q for %s", rec.Date, rec.Time, rec.ExternalID))
		s.metrics.ObserveSyncRecord("error")
		return nil
	}
	timeOfDay := parsedTime.Format("15:04")

	firstName, lastName := bilan.ParseDisplayName(rec.PatientName)
	patient, err := s.patients.FindByName(ctx, tx, firstName, lastName)
	if err != nil {
		return err
	}
	if patient == nil {
		patient = &patients.Patient{FirstName: firstName, LastName: lastName}
		if err := s.patients.Create(ctx, tx, patient); err != nil {
			return err
		}
		result.NewPatients++
		s.logger.Info("patient created from feed", "patient_id", patient.ID, "name", rec.PatientName)
	}

	isBilan := s.classifier.IsAssessment(rec.Reason)
	kind := appointments.KindRegular
	if isBilan {
		kind = appointments.KindBilan
	}

	existing, err := s.appointments.GetByDoctolibID(ctx, tx, rec.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		externalID := rec.ExternalID
		a := &appointments.Appointment{
			DoctolibID: &externalID,
			PatientID:  patient.ID,
			Date:       date,
			Time:       timeOfDay,
			Kind:       kind,
		}
		if rec.Reason != "" {
			reason := rec.Reason
			a.Notes = &reason
		}
		if err := s.appointments.Create(ctx, tx, a); err != nil {
			return err
		}
		result.NewAppointments++
		s.metrics.ObserveSyncRecord("created")

		if isBilan {
			moved, err := s.patients.AdvanceLastBilan(ctx, tx, patient.ID, date)
			if err != nil {
				return err
			}
			if moved {
				patient.LastBilanDate = &date
			}
		}
		// A freshly imported row is never auto-cancelled on the run that
		// created it; the next sync sees it as existing and decides then.
		return nil
	}

	existing.Date = date
	existing.Time = timeOfDay
	existing.Kind = kind
	if rec.Reason != "" {
		reason := rec.Reason
		existing.Notes = &reason
	}
	if err := s.appointments.Update(ctx, tx, existing); err != nil {
		return err
	}
	result.UpdatedAppointments++
	s.metrics.ObserveSyncRecord("updated")

	if s.autoCancel && !isBilan {
		if err := s.maybeAutoCancel(ctx, tx, patient, existing, today, result); err != nil {
			return err
		}
	}
	return nil
}

// maybeAutoCancel cancels a non-bilan appointment of an overdue patient.
// Doctolib is the source of truth: the local row only changes after the
// remote cancellation succeeded.
func (s *SyncService) maybeAutoCancel(ctx context.Context, tx pgx.Tx, patient *patients.Patient, a *appointments.Appointment, today time.Time, result *Result) error {
	if a == nil || a.Status != appointments.StatusScheduled || a.DoctolibID == nil {
		return nil
	}
	if !bilan.IsDue(patient.LastBilanDate, today, s.maxDays) {
		return nil
	}

	if err := s.client.CancelAppointment(ctx, *a.DoctolibID, autoCancelReason); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("remote cancel failed for %s: %v", *a.DoctolibID, err))
		s.logger.Error("remote cancellation failed, keeping local row scheduled",
			"appointment_id", a.ID, "error", err)
		return nil
	}

	cancelled, err := s.appointments.MarkCancelled(ctx, tx, a.ID)
	if err != nil {
		return err
	}
	if !cancelled {
		return nil
	}
	result.CancelledAppointments++
	s.metrics.ObserveSyncRecord("cancelled")

	daysOverdue := bilan.DaysOverdue(patient.LastBilanDate, today)
	if daysOverdue < 0 {
		daysOverdue = 0
	}
	subject, message := notifications.BilanAlertMessage(patient.FirstName, daysOverdue)
	for _, ch := range notifications.AllChannels() {
		n := notifications.Notification{
			PatientID: patient.ID,
			Channel:   ch,
			Subject:   &subject,
			Message:   message,
		}
		if err := s.notifications.CreatePending(ctx, tx, &n); err != nil {
			return err
		}
	}

	s.logger.Info("appointment auto-cancelled, patient overdue for bilan",
		"appointment_id", a.ID, "patient_id", patient.ID, "days_overdue", daysOverdue)
	return nil
}
