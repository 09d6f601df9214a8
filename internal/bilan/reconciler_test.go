package bilan

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinebilan/kinebilan-backend/internal/appointments"
	"github.com/kinebilan/kinebilan-backend/internal/notifications"
	"github.com/kinebilan/kinebilan-backend/internal/patients"
)

func newTestReconciler(mock pgxmock.PgxPoolIface) *Reconciler {
	return NewReconciler(
		mock,
		patients.NewStore(mock),
		appointments.NewStore(mock),
		notifications.NewStore(mock),
		nil, 60, nil, nil,
	)
}

func patientRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "doctolib_id", "first_name", "last_name", "email", "phone", "birth_date",
		"address", "medical_condition", "notes", "last_bilan_date", "created_at", "updated_at",
	})
}

func appointmentRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "doctolib_id", "patient_id", "date", "time", "duration_mins",
		"status", "kind", "notes", "created_at", "updated_at",
	})
}

func TestRunPromotesNextAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	today := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	duePID := uuid.New()
	freshPID := uuid.New()
	apptID := uuid.New()
	apptDate := time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC)
	lastBilan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) // 90 days ago
	recentBilan := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, doctolib_id, first_name").
		WillReturnRows(patientRows().
			AddRow(duePID, nil, "Marie", "DUPONT", nil, nil, nil, nil, nil, nil, &lastBilan, now, now).
			AddRow(freshPID, nil, "Luc", "MARTIN", nil, nil, nil, nil, nil, nil, &recentBilan, now, now))
	mock.ExpectQuery("SELECT id, doctolib_id, patient_id").
		WithArgs(duePID, today, "00:00").
		WillReturnRows(appointmentRows().
			AddRow(apptID, nil, duePID, apptDate, "10:00", 30, "scheduled", "regular", nil, now, now))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(apptID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE patients").
		WithArgs(duePID, apptDate).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	result, err := newTestReconciler(mock).Run(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 2, result.PatientsScanned)
	assert.Equal(t, 1, result.PatientsDue)
	assert.Equal(t, 1, result.Promotions)
	assert.Equal(t, 1, result.NotificationsCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunPromptsWhenNothingBooked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	today := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	pid := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, doctolib_id, first_name").
		WillReturnRows(patientRows().
			AddRow(pid, nil, "Jean", "PETIT", nil, nil, nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery("SELECT id, doctolib_id, patient_id").
		WithArgs(pid, today, "00:00").
		WillReturnRows(appointmentRows())
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	result, err := newTestReconciler(mock).Run(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PatientsDue)
	assert.Equal(t, 0, result.Promotions)
	assert.Equal(t, 1, result.NotificationsCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSkipsAlreadyPromoted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	today := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	pid := uuid.New()
	apptID := uuid.New()
	apptDate := time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, doctolib_id, first_name").
		WillReturnRows(patientRows().
			AddRow(pid, nil, "Jean", "PETIT", nil, nil, nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery("SELECT id, doctolib_id, patient_id").
		WithArgs(pid, today, "00:00").
		WillReturnRows(appointmentRows().
			AddRow(apptID, nil, pid, apptDate, "10:00", 30, "scheduled", "bilan", nil, now, now))
	mock.ExpectCommit()

	result, err := newTestReconciler(mock).Run(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PatientsDue)
	assert.Equal(t, 0, result.Promotions)
	assert.Equal(t, 0, result.NotificationsCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	today := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	pid := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, doctolib_id, first_name").
		WillReturnRows(patientRows().
			AddRow(pid, nil, "Jean", "PETIT", nil, nil, nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery("SELECT id, doctolib_id, patient_id").
		WithArgs(pid, today, "00:00").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = newTestReconciler(mock).Run(context.Background(), today)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
