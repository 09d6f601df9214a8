package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinebilan/kinebilan-backend/internal/patients"
)

type fakeSender struct {
	failFor map[uuid.UUID]error
}

func (f *fakeSender) Send(ctx context.Context, p *patients.Patient, n *Notification) error {
	if err, ok := f.failFor[n.ID]; ok {
		return err
	}
	return nil
}

func TestProcessPendingSettlesEachRecordOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	pid := uuid.New()
	okID := uuid.New()
	badID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, patient_id").
		WithArgs("email", 100).
		WillReturnRows(notificationRows().
			AddRow(okID, pid, nil, "email", nil, "m1", "pending", nil, nil, now).
			AddRow(badID, pid, nil, "email", nil, "m2", "pending", nil, nil, now))
	mock.ExpectExec("UPDATE notifications").
		WithArgs(okID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE notifications").
		WithArgs(badID, "send rejected").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender := &fakeSender{failFor: map[uuid.UUID]error{badID: errors.New("send rejected")}}
	proc := NewProcessor(
		NewStore(mock),
		&fakePatients{patient: &patients.Patient{ID: pid}},
		map[Channel]Sender{ChannelEmail: sender},
		2, nil, nil,
	)

	result, err := proc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPendingSkipsChannelsWithoutSender(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	proc := NewProcessor(NewStore(mock), &fakePatients{}, map[Channel]Sender{}, 2, nil, nil)
	result, err := proc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
}

func TestProcessPendingMissingRecipientFailsClosed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	pid := uuid.New()
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, patient_id").
		WithArgs("email", 100).
		WillReturnRows(notificationRows().
			AddRow(id, pid, nil, "email", nil, "m", "pending", nil, nil, now))
	mock.ExpectExec("UPDATE notifications").
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// Patient exists but has no email; the real sender rejects it.
	sender := NewEmailSender(EmailConfig{APIKey: "key", FromEmail: "cabinet@example.fr"}, nil)
	proc := NewProcessor(
		NewStore(mock),
		&fakePatients{patient: &patients.Patient{ID: pid}},
		map[Channel]Sender{ChannelEmail: sender},
		1, nil, nil,
	)

	result, err := proc.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
