package directory

import (
	"context"

	"github.com/google/uuid"
)

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	ListApproved(ctx context.Context) ([]*Doctor, error)
	// ListByStatus lists doctors of one status, or all doctors when status
	// is empty, newest first.
	ListByStatus(ctx context.Context, status DoctorStatus, limit, offset int) ([]*Doctor, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status DoctorStatus) error
}
