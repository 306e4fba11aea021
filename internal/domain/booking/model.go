package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/pkg/apperr"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", apperr.Validation("unknown appointment status %q", s)
}

// Terminal reports whether no transition leaves st.
func (st Status) Terminal() bool {
	return st == StatusCancelled || st == StatusCompleted
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Appointment is a patient's request for a visit with a doctor. PatientName,
// DoctorName and DoctorSpecialty are filled on read.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	Status          Status    `json:"status"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	PatientName     string `json:"patient_name,omitempty"`
	DoctorName      string `json:"doctor_name,omitempty"`
	DoctorSpecialty string `json:"doctor_specialty,omitempty"`
}

type CreateAppointmentRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"appointment_date"`
	Time     string    `json:"appointment_time"`
	Notes    *string   `json:"notes,omitempty"`
}

// Validate checks the request and rewrites Date and Time in canonical
// YYYY-MM-DD and HH:MM form. Times with seconds are accepted.
func (r *CreateAppointmentRequest) Validate() error {
	if r.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}

	d, err := time.Parse(dateLayout, strings.TrimSpace(r.Date))
	if err != nil {
		return apperr.Validation("appointment_date must be YYYY-MM-DD")
	}
	r.Date = d.Format(dateLayout)

	raw := strings.TrimSpace(r.Time)
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		if t, err = time.Parse("15:04:05", raw); err != nil {
			return apperr.Validation("appointment_time must be HH:MM")
		}
	}
	r.Time = t.Format(timeLayout)

	if r.Notes != nil {
		notes := strings.TrimSpace(*r.Notes)
		if notes == "" {
			r.Notes = nil
		} else {
			r.Notes = &notes
		}
	}
	return nil
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// View is an appointment together with the transitions its viewer may make.
type View struct {
	*Appointment
	AllowedTransitions []Status `json:"allowed_transitions"`
}
