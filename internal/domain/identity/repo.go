package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// Transactor runs fn in one database transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DoctorRegistrar creates the pending doctor record for a new doctor user.
type DoctorRegistrar interface {
	RegisterDoctor(ctx context.Context, userID uuid.UUID, profile DoctorProfile) error
}
