package patients

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a physiotherapy patient record. LastBilanDate drives the bilan
// policy; it is the only field batch jobs write automatically.
type Patient struct {
	ID               uuid.UUID  `json:"id"`
	DoctolibID       *string    `json:"doctolib_id,omitempty"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Email            *string    `json:"email,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	Address          *string    `json:"address,omitempty"`
	MedicalCondition *string    `json:"medical_condition,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	LastBilanDate    *time.Time `json:"last_bilan_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
