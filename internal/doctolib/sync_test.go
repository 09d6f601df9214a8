package doctolib

import (
	"context"
	"errors"
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

type fakeFetcher struct {
	feed      []FeedAppointment
	fetchErr  error
	cancelErr error
	cancelled []string
}

func (f *fakeFetcher) FetchAppointments(ctx context.Context, from, to time.Time) ([]FeedAppointment, error) {
	return f.feed, f.fetchErr
}

func (f *fakeFetcher) CancelAppointment(ctx context.Context, externalID, reason string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, externalID)
	return nil
}

func newTestSync(fetcher *fakeFetcher, mock pgxmock.PgxPoolIface, cfg SyncConfig) *SyncService {
	return NewSyncService(
		fetcher, mock,
		patients.NewStore(mock),
		appointments.NewStore(mock),
		notifications.NewStore(mock),
		nil, cfg, nil, nil,
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

func TestSyncCreatesPatientAndBilanAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fetcher := &fakeFetcher{feed: []FeedAppointment{
		{ExternalID: "dc-1", PatientName: "DUPONT Marie", Date: "03/04/2025", Time: "10:00", Reason: "Bilan initial"},
	}}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, doctolib_id, first_name").
		WithArgs("Marie", "DUPONT").
		WillReturnRows(patientRows())
	mock.ExpectExec("INSERT INTO patients").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, doctolib_id, patient_id").
		WithArgs("dc-1").
		WillReturnRows(appointmentRows())
	mock.ExpectExec("INSERT INTO appointments").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE patients").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	result, err := newTestSync(fetcher, mock, SyncConfig{}).Sync(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.NewAppointments)
	assert.Equal(t, 1, result.NewPatients)
	assert.Empty(t, result.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncUpdatesExistingAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pid := uuid.New()
	apptID := uuid.New()
	now := time.Now()
	docID := "dc-1"
	oldDate := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

	fetcher := &fakeFetcher{feed: []FeedAppointment{
		{ExternalID: "dc-1", PatientName: "DUPONT Marie", Date: "05/04/2025", Time: "11:30", Reason: "Séance"},
	}}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, doctolib_id, first_name").
		WithArgs("Marie", "DUPONT").
		WillReturnRows(patientRows().
			AddRow(pid, nil, "Marie", "DUPONT", nil, nil, nil, nil, nil, nil, &now, now, now))
	mock.ExpectQuery("SELECT id, doctolib_id, patient_id").
		WithArgs("dc-1").
		WillReturnRows(appointmentRows().
			AddRow(apptID, &docID, pid, oldDate, "10:00", 30, "completed", "regular", nil, now, now))
	mock.ExpectExec("UPDATE appointments").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	result, err := newTestSync(fetcher, mock, SyncConfig{}).Sync(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedAppointments)
	assert.Equal(t, 0, result.NewAppointments)
	assert.Equal(t, 0, result.NewPatients)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncSkipsMalformedRecords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fetcher := &fakeFetcher{feed: []FeedAppointment{
		{ExternalID: "", PatientName: "DUPONT Marie", Date: "03/04/2025", Time: "10:00"},
		{ExternalID: "dc-2", PatientName: "PETIT Jean", Date: "2025-04-03", Time: "10:00"},
	}}

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := newTestSync(fetcher, mock, SyncConfig{}).Sync(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, 0, result.NewAppointments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncAutoCancelsOverduePatient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pid := uuid.New()
	apptID := uuid.New()
	now := time.Now()
	docID := "dc-1"
	lastBilan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	apptDate := time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)

	fetcher := &fakeFetcher{feed: []FeedAppointment{
		{ExternalID: "dc-1", PatientName: "DUPONT Marie", Date: "05/04/2025", Time: "11:30", Reason: "Séance"},
	}}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, doctolib_id, first_name").
		WithArgs("Marie", "DUPONT").
		WillReturnRows(patientRows().
			AddRow(pid, nil, "Marie", "DUPONT", nil, nil, nil, nil, nil, nil, &lastBilan, now, now))
	mock.ExpectQuery("SELECT id, doctolib_id, patient_id").
		WithArgs("dc-1").
		WillReturnRows(appointmentRows().
			AddRow(apptID, &docID, pid, apptDate, "11:30", 30, "scheduled", "regular", nil, now, now))
	mock.ExpectExec("UPDATE appointments").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(apptID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	for range notifications.AllChannels() {
		mock.ExpectExec("INSERT INTO notifications").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	svc := newTestSync(fetcher, mock, SyncConfig{AutoCancel: true, MaxDays: 60})
	result, err := svc.Sync(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CancelledAppointments)
	assert.Equal(t, []string{"dc-1"}, fetcher.cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncDoesNotAutoCancelFreshImport(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pid := uuid.New()
	now := time.Now()
	lastBilan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	fetcher := &fakeFetcher{feed: []FeedAppointment{
		{ExternalID: "dc-9", PatientName: "DUPONT Marie", Date: "05/04/2025", Time: "11:30", Reason: "Séance"},
	}}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, doctolib_id, first_name").
		WithArgs("Marie", "DUPONT").
		WillReturnRows(patientRows().
			AddRow(pid, nil, "Marie", "DUPONT", nil, nil, nil, nil, nil, nil, &lastBilan, now, now))
	mock.ExpectQuery("SELECT id, doctolib_id, patient_id").
		WithArgs("dc-9").
		WillReturnRows(appointmentRows())
	mock.ExpectExec("INSERT INTO appointments").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// No cancellation and no alert rows: the row was created this run.
	mock.ExpectCommit()

	svc := newTestSync(fetcher, mock, SyncConfig{AutoCancel: true, MaxDays: 60})
	result, err := svc.Sync(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewAppointments)
	assert.Equal(t, 0, result.CancelledAppointments)
	assert.Empty(t, fetcher.cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncKeepsLocalRowWhenRemoteCancelFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pid := uuid.New()
	apptID := uuid.New()
	now := time.Now()
	docID := "dc-1"
	apptDate := time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)

	fetcher := &fakeFetcher{
		feed: []FeedAppointment{
			{ExternalID: "dc-1", PatientName: "DUPONT Marie", Date: "05/04/2025", Time: "11:30", Reason: "Séance"},
		},
		cancelErr: errors.New("sidecar timeout"),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, doctolib_id, first_name").
		WithArgs("Marie", "DUPONT").
		WillReturnRows(patientRows().
			AddRow(pid, nil, "Marie", "DUPONT", nil, nil, nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery("SELECT id, doctolib_id, patient_id").
		WithArgs("dc-1").
		WillReturnRows(appointmentRows().
			AddRow(apptID, &docID, pid, apptDate, "11:30", 30, "scheduled", "regular", nil, now, now))
	mock.ExpectExec("UPDATE appointments").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// No cancellation update and no alert rows: the remote cancel failed.
	mock.ExpectCommit()

	svc := newTestSync(fetcher, mock, SyncConfig{AutoCancel: true})
	result, err := svc.Sync(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 0, result.CancelledAppointments)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "sidecar timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}
