package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreateDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	pid := uuid.New()
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pid, pgxmock.AnyArg(), "10:30", 30,
			"scheduled", "regular", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &Appointment{
		PatientID: pid,
		Date:      time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Time:      "10:30",
	}
	require.NoError(t, store.Create(context.Background(), nil, a))
	assert.Equal(t, StatusScheduled, a.Status)
	assert.Equal(t, KindRegular, a.Kind)
	assert.Equal(t, 30, a.DurationMins)
}

func TestStoreNextScheduledNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	pid := uuid.New()
	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, doctolib_id").
		WithArgs(pid, from, "00:00").
		WillReturnRows(appointmentRows())

	a, err := store.NextScheduled(context.Background(), nil, pid, from)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestStoreNextScheduledSkipsElapsedSlots(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	pid := uuid.New()
	// Mid-afternoon: a 09:00 slot today must not count as upcoming.
	from := time.Date(2025, 4, 1, 14, 30, 0, 0, time.UTC)
	day := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, doctolib_id").
		WithArgs(pid, day, "14:30").
		WillReturnRows(appointmentRows())

	a, err := store.NextScheduled(context.Background(), nil, pid, from)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestStorePromoteGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	promoted, err := store.Promote(context.Background(), nil, id)
	require.NoError(t, err)
	assert.True(t, promoted)

	// Already a bilan: the guard keeps the second promotion a no-op.
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	promoted, err = store.Promote(context.Background(), nil, id)
	require.NoError(t, err)
	assert.False(t, promoted)
}

func TestStoreMarkCancelledGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	cancelled, err := store.MarkCancelled(context.Background(), nil, id)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestStoreGetByDoctolibID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	pid := uuid.New()
	now := time.Now()
	date := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	docID := "dc-123"

	mock.ExpectQuery("SELECT id, doctolib_id").
		WithArgs(docID).
		WillReturnRows(appointmentRows().AddRow(
			id, &docID, pid, date, "09:00", 30, "scheduled", "bilan", nil, now, now))

	a, err := store.GetByDoctolibID(context.Background(), nil, docID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, KindBilan, a.Kind)
	assert.True(t, a.IsBilan())
}

func TestStoreListByDateRange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	id1, id2, pid := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, doctolib_id").
		WithArgs(from, to).
		WillReturnRows(appointmentRows().
			AddRow(id1, nil, pid, from.AddDate(0, 0, 2), "09:00", 30, "scheduled", "regular", nil, now, now).
			AddRow(id2, nil, pid, from.AddDate(0, 0, 9), "14:00", 45, "scheduled", "bilan", nil, now, now))

	list, err := store.ListByDateRange(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, id1, list[0].ID)
	assert.Equal(t, KindBilan, list[1].Kind)
}

func appointmentRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "doctolib_id", "patient_id", "date", "time", "duration_mins",
		"status", "kind", "notes", "created_at", "updated_at",
	})
}
