package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0612345678", "+33612345678"},
		{"06 12 34 56 78", "+33612345678"},
		{"06.12.34.56.78", "+33612345678"},
		{"+33612345678", "+33612345678"},
		{"+1 555 012 3456", "+15550123456"},
		{"12345", "12345"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), "input %q", tt.in)
	}
}

func newTestSMSSender(t *testing.T, handler http.HandlerFunc) *SMSSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &SMSSender{
		accountSID: "AC123",
		authToken:  "token",
		from:       "+33700000000",
		baseURL:    srv.URL,
		httpClient: &http.Client{Timeout: time.Second},
		logger:     logging.Default(),
	}
}

func TestSMSSendSingleAttempt(t *testing.T) {
	calls := 0
	sender := newTestSMSSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+33612345678", r.Form.Get("To"))
		assert.Equal(t, "+33700000000", r.Form.Get("From"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	})

	phone := "0612345678"
	p := &patients.Patient{ID: uuid.New(), Phone: &phone}
	n := &Notification{ID: uuid.New(), Channel: ChannelSMS, Message: "rappel"}
	require.NoError(t, sender.Send(context.Background(), p, n))
	assert.Equal(t, 1, calls)
}

func TestSMSSendFailureIsTerminal(t *testing.T) {
	calls := 0
	sender := newTestSMSSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' phone number","status":400}`))
	})

	phone := "0612345678"
	p := &patients.Patient{ID: uuid.New(), Phone: &phone}
	n := &Notification{ID: uuid.New(), Channel: ChannelSMS, Message: "rappel"}
	err := sender.Send(context.Background(), p, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
	// One attempt only: a rejected message settles as failed, no retry.
	assert.Equal(t, 1, calls)
}

func TestSMSSendMissingPhoneFailsClosed(t *testing.T) {
	sender := newTestSMSSender(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	p := &patients.Patient{ID: uuid.New()}
	n := &Notification{ID: uuid.New(), Channel: ChannelSMS}
	assert.Error(t, sender.Send(context.Background(), p, n))
}

func TestDisabledSenderAlwaysFails(t *testing.T) {
	sender := NewSMSSender(SMSConfig{}, nil)
	p := &patients.Patient{ID: uuid.New()}
	err := sender.Send(context.Background(), p, &Notification{ID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}
