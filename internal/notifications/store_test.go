package notifications

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePendingAlwaysStartsPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n := Notification{
		PatientID: uuid.New(),
		Channel:   ChannelEmail,
		Message:   "test",
		Status:    StatusSent, // ignored: new rows always start pending
	}
	require.NoError(t, store.CreatePending(context.Background(), nil, &n))
	assert.Equal(t, StatusPending, n.Status)
	assert.NotEqual(t, uuid.Nil, n.ID)
}

func TestMarkSentGuardedNoOp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE notifications").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	changed, err := store.MarkSent(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, changed)

	// A second settle of the same row changes nothing: terminal states stick.
	mock.ExpectExec("UPDATE notifications").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	changed, err = store.MarkSent(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMarkFailedRecordsCause(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE notifications").
		WithArgs(id, "no email on file").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	changed, err := store.MarkFailed(context.Background(), id, "no email on file")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestListPendingEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT id, patient_id").
		WithArgs("sms", 100).
		WillReturnRows(notificationRows())

	list, err := store.ListPending(context.Background(), ChannelSMS, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func notificationRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "patient_id", "appointment_id", "channel", "subject",
		"message", "status", "error", "sent_at", "created_at",
	})
}
