package devices

import (
	"time"

	"github.com/google/uuid"
)

// DeviceType identifies the platform a push token belongs to.
type DeviceType string

const (
	TypeAndroid DeviceType = "android"
	TypeIOS     DeviceType = "ios"
	TypeWeb     DeviceType = "web"
)

// Valid reports whether the device type is a known platform.
func (d DeviceType) Valid() bool {
	switch d {
	case TypeAndroid, TypeIOS, TypeWeb:
		return true
	}
	return false
}

// Device is one registered push target. The token is the unique key: a
// re-registration of the same token refreshes and reactivates the row
// regardless of which patient it was previously attached to.
type Device struct {
	ID        uuid.UUID  `json:"id"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	Name      *string    `json:"name,omitempty"`
	Type      DeviceType `json:"device_type"`
	Token     string     `json:"token"`
	Active    bool       `json:"active"`
	LastUsed  time.Time  `json:"last_used"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
