package directory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/identity"
	"github.com/docbook/docbook/pkg/apperr"
)

// Recorder receives admin review decisions.
type Recorder interface {
	DoctorReviewed(status string)
}

type nopRecorder struct{}

func (nopRecorder) DoctorReviewed(string) {}

type Service struct {
	doctors DoctorRepository
	rec     Recorder
}

func NewService(doctors DoctorRepository) *Service {
	return &Service{doctors: doctors, rec: nopRecorder{}}
}

func (s *Service) SetRecorder(r Recorder) {
	s.rec = r
}

// List returns the approved doctors matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]*Doctor, error) {
	all, err := s.doctors.ListApproved(ctx)
	if err != nil {
		return nil, apperr.Remote("list doctors", err)
	}

	f = f.normalize()
	out := make([]*Doctor, 0, len(all))
	for _, d := range all {
		if d.Status == StatusApproved && f.Match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Facets returns the sorted distinct specialties and locations of approved
// doctors.
func (s *Service) Facets(ctx context.Context) (*Facets, error) {
	all, err := s.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	specialties := make(map[string]bool)
	locations := make(map[string]bool)
	for _, d := range all {
		if d.Specialty != "" {
			specialties[d.Specialty] = true
		}
		if d.Location != "" {
			locations[d.Location] = true
		}
	}
	return &Facets{Specialties: sortedKeys(specialties), Locations: sortedKeys(locations)}, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns one doctor. Doctors that are not approved are only visible to
// admins and to the doctor themselves.
func (s *Service) Get(ctx context.Context, viewer identity.Principal, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Remote("get doctor", err)
	}
	if d.Status == StatusApproved || viewer.Role == identity.RoleAdmin ||
		(viewer.Authenticated() && viewer.UserID == d.UserID) {
		return d, nil
	}
	return nil, apperr.NotFound("doctor not found")
}

// GetByUserID resolves the doctor record owned by a doctor user.
func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Remote("get doctor profile", err)
	}
	return d, nil
}

// RegisterDoctor creates the pending doctor record for a newly signed-up
// doctor user.
func (s *Service) RegisterDoctor(ctx context.Context, userID uuid.UUID, p identity.DoctorProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d := &Doctor{
		UserID:          userID,
		Specialty:       p.Specialty,
		ExperienceYears: p.ExperienceYears,
		Qualification:   p.Qualification,
		ConsultationFee: p.ConsultationFee,
		Location:        p.Location,
		Bio:             p.Bio,
		Status:          StatusPending,
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return apperr.Remote("create doctor", err)
	}
	return nil
}

func requireAdmin(p identity.Principal) error {
	if !p.Authenticated() {
		return apperr.Unauthorized("authentication required")
	}
	if p.Role != identity.RoleAdmin {
		return apperr.Forbidden("only admins can review doctors")
	}
	return nil
}

// ListByStatus lists doctors for review. An empty status lists all.
func (s *Service) ListByStatus(ctx context.Context, p identity.Principal, status DoctorStatus, limit, offset int) ([]*Doctor, int, error) {
	if err := requireAdmin(p); err != nil {
		return nil, 0, err
	}
	items, total, err := s.doctors.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.Remote("list doctors", err)
	}
	return items, total, nil
}

// SetStatus approves or rejects a doctor. Setting the current status again
// is a no-op, and no doctor can be moved back to pending.
func (s *Service) SetStatus(ctx context.Context, p identity.Principal, id uuid.UUID, status DoctorStatus) (*Doctor, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if status != StatusApproved && status != StatusRejected {
		return nil, apperr.Validation("doctor status can only be set to approved or rejected")
	}

	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Remote("get doctor", err)
	}
	if d.Status == status {
		return d, nil
	}

	if err := s.doctors.UpdateStatus(ctx, id, status); err != nil {
		return nil, apperr.Remote("update doctor status", err)
	}
	s.rec.DoctorReviewed(string(status))

	d, err = s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Remote("get doctor", err)
	}
	return d, nil
}
