package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/directory"
	"github.com/docbook/docbook/internal/domain/identity"
	"github.com/docbook/docbook/pkg/apperr"
)

// Recorder receives booking and transition outcomes.
type Recorder interface {
	AppointmentCreated()
	StatusTransition(from, to, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AppointmentCreated()             {}
func (nopRecorder) StatusTransition(_, _, _ string) {}

type Service struct {
	appts   AppointmentRepository
	doctors DoctorLookup
	rec     Recorder
}

func NewService(appts AppointmentRepository, doctors DoctorLookup) *Service {
	return &Service{appts: appts, doctors: doctors, rec: nopRecorder{}}
}

func (s *Service) SetRecorder(r Recorder) {
	s.rec = r
}

func requireAuth(p identity.Principal) error {
	if !p.Authenticated() {
		return apperr.Unauthorized("authentication required")
	}
	return nil
}

// Create books a pending appointment for the calling patient with an
// approved doctor.
func (s *Service) Create(ctx context.Context, p identity.Principal, req CreateAppointmentRequest) (*Appointment, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	if p.Role != identity.RolePatient {
		return nil, apperr.Validation("only patients can book appointments")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	d, err := s.doctors.GetByID(ctx, req.DoctorID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("doctor %s does not exist", req.DoctorID)
	}
	if err != nil {
		return nil, apperr.Remote("get doctor", err)
	}
	if d.Status != directory.StatusApproved {
		return nil, apperr.Validation("doctor %s is not accepting appointments", req.DoctorID)
	}

	a := &Appointment{
		PatientID:       p.UserID,
		DoctorID:        d.ID,
		AppointmentDate: req.Date,
		AppointmentTime: req.Time,
		Status:          StatusPending,
		Notes:           req.Notes,
	}
	if err := s.appts.Create(ctx, a); err != nil {
		return nil, apperr.Remote("create appointment", err)
	}
	s.rec.AppointmentCreated()

	created, err := s.appts.GetByID(ctx, a.ID)
	if err != nil {
		return nil, apperr.Remote("get appointment", err)
	}
	return created, nil
}

// ownDoctorID returns the doctor record id of a doctor caller. ok is false
// when the doctor has no record yet.
func (s *Service) ownDoctorID(ctx context.Context, p identity.Principal) (uuid.UUID, bool, error) {
	d, err := s.doctors.GetByUserID(ctx, p.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, apperr.Remote("get doctor profile", err)
	}
	return d.ID, true, nil
}

// ListFor lists the appointments visible to p: a patient's own bookings, a
// doctor's appointments, or every appointment for an admin. A doctor
// without a doctor record gets an empty list.
func (s *Service) ListFor(ctx context.Context, p identity.Principal, limit, offset int) ([]*Appointment, int, error) {
	if err := requireAuth(p); err != nil {
		return nil, 0, err
	}

	var (
		items []*Appointment
		total int
		err   error
	)
	switch p.Role {
	case identity.RolePatient:
		items, total, err = s.appts.ListByPatient(ctx, p.UserID, limit, offset)
	case identity.RoleDoctor:
		doctorID, ok, lookupErr := s.ownDoctorID(ctx, p)
		if lookupErr != nil {
			return nil, 0, lookupErr
		}
		if !ok {
			return []*Appointment{}, 0, nil
		}
		items, total, err = s.appts.ListByDoctor(ctx, doctorID, limit, offset)
	case identity.RoleAdmin:
		items, total, err = s.appts.ListAll(ctx, limit, offset)
	default:
		return nil, 0, apperr.Unauthorized("authentication required")
	}
	if err != nil {
		return nil, 0, apperr.Remote("list appointments", err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, total, nil
}

// actorFor derives the workflow actor of p for appointment a.
func (s *Service) actorFor(ctx context.Context, p identity.Principal, a *Appointment) (Actor, error) {
	actor := Actor{Role: p.Role}
	switch p.Role {
	case identity.RolePatient:
		actor.Owner = a.PatientID == p.UserID
	case identity.RoleDoctor:
		doctorID, ok, err := s.ownDoctorID(ctx, p)
		if err != nil {
			return Actor{}, err
		}
		actor.Owner = ok && a.DoctorID == doctorID
	case identity.RoleAdmin:
	}
	return actor, nil
}

// Get returns one appointment with the transitions p may make on it. Only
// its patient, its doctor and admins can see it.
func (s *Service) Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*View, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Remote("get appointment", err)
	}
	actor, err := s.actorFor(ctx, p, a)
	if err != nil {
		return nil, err
	}
	if !actor.Owner && p.Role != identity.RoleAdmin {
		return nil, apperr.NotFound("appointment not found")
	}
	return &View{Appointment: a, AllowedTransitions: AllowedTransitions(a.Status, actor)}, nil
}

// UpdateStatus moves an appointment to status `to` if the workflow allows
// p to. The write is guarded on the status that was validated, so a
// concurrent change fails with an invalid transition instead of
// overwriting it.
func (s *Service) UpdateStatus(ctx context.Context, p identity.Principal, id uuid.UUID, to Status) (*View, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Remote("get appointment", err)
	}
	actor, err := s.actorFor(ctx, p, a)
	if err != nil {
		return nil, err
	}

	from := a.Status
	if err := Transition(from, to, actor); err != nil {
		s.rec.StatusTransition(string(from), string(to), "rejected")
		return nil, err
	}

	changed, err := s.appts.UpdateStatus(ctx, id, from, to)
	if err != nil {
		return nil, apperr.Remote("update appointment status", err)
	}
	if !changed {
		s.rec.StatusTransition(string(from), string(to), "conflict")
		current, err := s.appts.GetByID(ctx, id)
		if err != nil {
			return nil, apperr.Remote("get appointment", err)
		}
		return nil, apperr.InvalidTransition("appointment is now %s and cannot move to %s", current.Status, to)
	}
	s.rec.StatusTransition(string(from), string(to), "applied")

	updated, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Remote("get appointment", err)
	}
	return &View{Appointment: updated, AllowedTransitions: AllowedTransitions(updated.Status, actor)}, nil
}
