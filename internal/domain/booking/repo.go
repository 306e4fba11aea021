package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/directory"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// List methods return appointments newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListAll(ctx context.Context, limit, offset int) ([]*Appointment, int, error)
	// UpdateStatus sets the status to `to` only if it is still `from`, and
	// reports whether a row was changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
}

// DoctorLookup resolves doctor records regardless of their review status.
// directory.DoctorRepository satisfies it.
type DoctorLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*directory.Doctor, error)
}
