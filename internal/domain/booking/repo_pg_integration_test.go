//go:build integration

package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/docbook/docbook/internal/domain/directory"
	"github.com/docbook/docbook/internal/domain/identity"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/internal/platform/db/dbtest"
	"github.com/docbook/docbook/pkg/apperr"
)

type stack struct {
	pool      *pgxpool.Pool
	identity  *identity.Service
	directory *directory.Service
	booking   *Service
	appts     AppointmentRepository
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()

	connStr, stop, err := dbtest.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(stop)

	pool, err := db.NewPool(ctx, connStr, 5, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator := db.NewMigrator(pool, dbtest.MigrationsDir())
	applied, err := migrator.Up(ctx)
	require.NoError(t, err)
	require.Positive(t, applied)

	again, err := migrator.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, again, "second run applies nothing")

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %s applied", s.Name)
	}

	revoked := auth.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(revoked.Close)
	issuer := auth.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), "docbook", time.Hour)

	doctors := directory.NewDoctorRepoPG(pool)
	directorySvc := directory.NewService(doctors)
	appts := NewAppointmentRepoPG(pool)
	return &stack{
		pool: pool,
		identity: identity.NewService(identity.NewUserRepoPG(pool), db.NewTransactor(pool), directorySvc,
			auth.NewPasswordHasherWithCost(bcrypt.MinCost), issuer, revoked),
		directory: directorySvc,
		booking:   NewService(appts, doctors),
		appts:     appts,
	}
}

func principalOf(u *identity.User) identity.Principal {
	return identity.Principal{UserID: u.ID, Role: u.Role}
}

func TestPostgres_BookingLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	admin, err := s.identity.CreateAdmin(ctx, "admin@docbook.test", "secret123", "Site Admin")
	require.NoError(t, err)

	patient, err := s.identity.SignUp(ctx, identity.SignUpRequest{
		Email: "pat@docbook.test", Password: "secret123", FullName: "Pat Lee", Role: identity.RolePatient,
	})
	require.NoError(t, err)

	drUser, err := s.identity.SignUp(ctx, identity.SignUpRequest{
		Email: "a@docbook.test", Password: "secret123", FullName: "Dr. A", Role: identity.RoleDoctor,
		Doctor: &identity.DoctorProfile{
			Specialty: "Cardiology", ExperienceYears: 12, Qualification: "MD",
			ConsultationFee: 450.5, Location: "Mumbai",
		},
	})
	require.NoError(t, err)

	_, err = s.identity.SignUp(ctx, identity.SignUpRequest{
		Email: "A@docbook.test", Password: "secret123", FullName: "Dup", Role: identity.RolePatient,
	})
	assert.ErrorIs(t, err, apperr.ErrValidation, "emails are unique")

	dr, err := s.directory.GetByUserID(ctx, drUser.ID)
	require.NoError(t, err)
	assert.Equal(t, directory.StatusPending, dr.Status)
	assert.Equal(t, "Dr. A", dr.FullName)
	assert.InDelta(t, 450.5, dr.ConsultationFee, 0.001)

	// Pending doctors are not listed or bookable.
	listed, err := s.directory.List(ctx, directory.Filter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	req := CreateAppointmentRequest{DoctorID: dr.ID, Date: "2025-03-10", Time: "10:00"}
	_, err = s.booking.Create(ctx, principalOf(patient), req)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	pending, total, err := s.directory.ListByStatus(ctx, principalOf(admin), directory.StatusPending, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, pending, 1)

	all, total, err := s.directory.ListByStatus(ctx, principalOf(admin), "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, all, 1)

	_, err = s.directory.SetStatus(ctx, principalOf(admin), dr.ID, directory.StatusApproved)
	require.NoError(t, err)

	listed, err = s.directory.List(ctx, directory.Filter{Text: "cardio", Location: "Mumbai"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	a, err := s.booking.Create(ctx, principalOf(patient), req)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, "2025-03-10", a.AppointmentDate)
	assert.Equal(t, "10:00", a.AppointmentTime)
	assert.Equal(t, "Pat Lee", a.PatientName)
	assert.Equal(t, "Dr. A", a.DoctorName)
	assert.Equal(t, "Cardiology", a.DoctorSpecialty)

	doctor := principalOf(drUser)
	v, err := s.booking.UpdateStatus(ctx, doctor, a.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, v.Status)

	_, err = s.booking.UpdateStatus(ctx, principalOf(patient), a.ID, StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	items, total, err := s.booking.ListFor(ctx, doctor, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, StatusConfirmed, items[0].Status)

	later, err := s.booking.Create(ctx, principalOf(patient), CreateAppointmentRequest{
		DoctorID: dr.ID, Date: "2025-03-11", Time: "09:30",
	})
	require.NoError(t, err)
	items, total, err = s.booking.ListFor(ctx, principalOf(patient), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, later.ID, items[0].ID, "newest first")
	assert.Equal(t, "09:30", items[0].AppointmentTime)

	_, err = s.booking.Get(ctx, principalOf(admin), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostgres_GuardedStatusUpdate(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	admin, err := s.identity.CreateAdmin(ctx, "admin@docbook.test", "secret123", "Site Admin")
	require.NoError(t, err)
	patient, err := s.identity.SignUp(ctx, identity.SignUpRequest{
		Email: "pat@docbook.test", Password: "secret123", FullName: "Pat Lee", Role: identity.RolePatient,
	})
	require.NoError(t, err)
	drUser, err := s.identity.SignUp(ctx, identity.SignUpRequest{
		Email: "a@docbook.test", Password: "secret123", FullName: "Dr. A", Role: identity.RoleDoctor,
		Doctor: &identity.DoctorProfile{Specialty: "Dermatology", Location: "Pune"},
	})
	require.NoError(t, err)
	dr, err := s.directory.GetByUserID(ctx, drUser.ID)
	require.NoError(t, err)
	_, err = s.directory.SetStatus(ctx, principalOf(admin), dr.ID, directory.StatusApproved)
	require.NoError(t, err)

	a, err := s.booking.Create(ctx, principalOf(patient), CreateAppointmentRequest{
		DoctorID: dr.ID, Date: "2025-04-01", Time: "16:45",
	})
	require.NoError(t, err)

	// Only one of a confirm and a cancel racing from pending can win.
	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, to := range []Status{StatusConfirmed, StatusCancelled} {
		wg.Add(1)
		go func(i int, to Status) {
			defer wg.Done()
			ok, err := s.appts.UpdateStatus(ctx, a.ID, StatusPending, to)
			assert.NoError(t, err)
			results[i] = ok
		}(i, to)
	}
	wg.Wait()
	assert.NotEqual(t, results[0], results[1], "exactly one update applies")

	changed, err := s.appts.UpdateStatus(ctx, a.ID, StatusPending, StatusConfirmed)
	require.NoError(t, err)
	assert.False(t, changed)
}
