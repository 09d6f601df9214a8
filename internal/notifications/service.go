package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kinebilan/kinebilan-backend/internal/appointments"
	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// ErrUnknownChannel is returned when a request names a channel that is not
// email, sms or push.
var ErrUnknownChannel = errors.New("notifications: unknown channel")

// PatientGetter resolves patients for recipient validation.
type PatientGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
}

// AppointmentGetter resolves appointments for reminder templating.
type AppointmentGetter interface {
	GetByID(ctx context.Context, q appointments.Querier, id uuid.UUID) (*appointments.Appointment, error)
}

// Service queues notifications for patients across the configured channels.
type Service struct {
	store        *Store
	patients     PatientGetter
	appointments AppointmentGetter
	logger       *logging.Logger
}

// NewService creates a notification service.
func NewService(store *Store, patients PatientGetter, appointments AppointmentGetter, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, patients: patients, appointments: appointments, logger: logger}
}

// NotifyPatient queues one pending notification per channel for the patient.
// An empty channel list fans out to all channels. The rows are queued, not
// sent; the processor delivers them.
func (s *Service) NotifyPatient(ctx context.Context, patientID uuid.UUID, message string, subject *string, channels []Channel, appointmentID *uuid.UUID) ([]Notification, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		channels = AllChannels()
	}

	created := make([]Notification, 0, len(channels))
	for _, ch := range channels {
		if !ch.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
		}
		n := Notification{
			PatientID:     patientID,
			AppointmentID: appointmentID,
			Channel:       ch,
			Subject:       subject,
			Message:       message,
		}
		if err := s.store.CreatePending(ctx, nil, &n); err != nil {
			return created, err
		}
		created = append(created, n)
	}
	s.logger.Info("notifications queued", "patient_id", patientID, "count", len(created))
	return created, nil
}

// SendAppointmentReminder queues a reminder for an upcoming appointment. An
// empty customMessage falls back to the standard copy, which differs for
// bilan sessions.
func (s *Service) SendAppointmentReminder(ctx context.Context, appointmentID uuid.UUID, customMessage string, channels []Channel) ([]Notification, error) {
	a, err := s.appointments.GetByID(ctx, nil, appointmentID)
	if err != nil {
		return nil, err
	}

	message := customMessage
	if message == "" {
		message = ReminderMessage(a)
	}
	subject := fmt.Sprintf("Rappel de rendez-vous - %s", a.Date.Format("02/01/2006"))
	return s.NotifyPatient(ctx, a.PatientID, message, &subject, channels, &a.ID)
}

// SendBilanAlert queues an overdue-assessment alert for a patient. daysOverdue
// of zero means the patient has never had an assessment on record.
func (s *Service) SendBilanAlert(ctx context.Context, patientID uuid.UUID, daysOverdue int, channels []Channel) ([]Notification, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	subject, message := BilanAlertMessage(p.FirstName, daysOverdue)
	return s.NotifyPatient(ctx, patientID, message, &subject, channels, nil)
}

// ReminderMessage builds the standard appointment reminder copy.
func ReminderMessage(a *appointments.Appointment) string {
	if a.IsBilan() {
		return fmt.Sprintf(
			"Rappel: Vous avez un bilan de kinésithérapie prévu le %s à %s. Pensez à apporter votre ordonnance médicale.",
			a.Date.Format("02/01/2006"), a.Time)
	}
	return fmt.Sprintf(
		"Rappel: Vous avez une séance de kinésithérapie prévue le %s à %s.",
		a.Date.Format("02/01/2006"), a.Time)
}

// BilanAlertMessage builds the overdue-assessment alert copy. daysOverdue of
// zero means no assessment on record.
func BilanAlertMessage(firstName string, daysOverdue int) (subject, message string) {
	message = fmt.Sprintf("Bonjour %s,\n\nNous vous informons qu'un bilan de kinésithérapie est nécessaire ", firstName)
	if daysOverdue > 0 {
		message += fmt.Sprintf("(le dernier date de plus de %d jours). ", daysOverdue)
	} else {
		message += "pour la poursuite de vos soins. "
	}
	message += "Merci de contacter le cabinet pour programmer un rendez-vous de bilan.\n\nCordialement,\nVotre kinésithérapeute."
	return "Bilan de kinésithérapie requis", message
}

// BilanReminderMessage builds the copy sent when a patient's upcoming
// appointment is converted into an assessment. A nil date means the patient
// has nothing booked and is prompted to schedule one.
func BilanReminderMessage(firstName string, date *time.Time, timeOfDay string) (subject, message string) {
	message = fmt.Sprintf("Bonjour %s,\n\nNous vous rappelons qu'un bilan est nécessaire pour poursuivre vos séances de kinésithérapie. ", firstName)
	if date != nil {
		message += fmt.Sprintf("Votre prochain rendez-vous du %s à %s sera transformé en séance de bilan.",
			date.Format("02/01/2006"), timeOfDay)
	} else {
		message += "Merci de prendre rendez-vous pour une séance de bilan dès que possible."
	}
	message += "\n\nCordialement,\nVotre kinésithérapeute"
	return "Rappel de bilan kinésithérapie", message
}
