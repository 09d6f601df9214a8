package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusMissed    Status = "missed"
)

// Kind distinguishes a regular session from a bilan. A single enum replaces
// the historical type + is_bilan pair so the two can never disagree.
type Kind string

const (
	KindRegular Kind = "regular"
	KindBilan   Kind = "bilan"
)

// Appointment is a single physiotherapy session. DoctolibID is the natural
// key for idempotent imports from the external scheduling system.
type Appointment struct {
	ID           uuid.UUID `json:"id"`
	DoctolibID   *string   `json:"doctolib_id,omitempty"`
	PatientID    uuid.UUID `json:"patient_id"`
	Date         time.Time `json:"date"`
	Time         string    `json:"time"` // HH:MM
	DurationMins int       `json:"duration_mins"`
	Status       Status    `json:"status"`
	Kind         Kind      `json:"kind"`
	Notes        *string   `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsBilan reports whether the appointment is a bilan.
func (a *Appointment) IsBilan() bool {
	return a.Kind == KindBilan
}
