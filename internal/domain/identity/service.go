package identity

import (
	"context"
	"errors"

	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/pkg/apperr"
)

// Recorder receives sign-up and sign-in outcomes.
type Recorder interface {
	AuthAttempt(operation string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) AuthAttempt(string, bool) {}

var errInvalidCredentials = apperr.Validation("invalid email or password")

type Service struct {
	users   UserRepository
	tx      Transactor
	doctors DoctorRegistrar
	hasher  *auth.PasswordHasher
	tokens  *auth.Issuer
	revoked auth.RevocationStore
	rec     Recorder
}

func NewService(users UserRepository, tx Transactor, doctors DoctorRegistrar,
	hasher *auth.PasswordHasher, tokens *auth.Issuer, revoked auth.RevocationStore) *Service {
	return &Service{
		users:   users,
		tx:      tx,
		doctors: doctors,
		hasher:  hasher,
		tokens:  tokens,
		revoked: revoked,
		rec:     nopRecorder{},
	}
}

func (s *Service) SetRecorder(r Recorder) {
	s.rec = r
}

// SignUp registers a patient or doctor. A doctor's user row and pending
// doctor record are written in the same transaction.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	u, err := s.signUp(ctx, req)
	s.rec.AuthAttempt("sign_up", err == nil)
	return u, err
}

func (s *Service) signUp(ctx context.Context, req SignUpRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Remote("hash password", err)
	}

	u := &User{
		Email:        req.Email,
		Role:         req.Role,
		FullName:     req.FullName,
		Phone:        req.Phone,
		PasswordHash: hash,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		if u.Role == RoleDoctor {
			return s.doctors.RegisterDoctor(ctx, u.ID, *req.Doctor)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Remote("sign up", err)
	}
	return u, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	sess, err := s.signIn(ctx, email, password)
	s.rec.AuthAttempt("sign_in", err == nil)
	return sess, err
}

func (s *Service) signIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil || password == "" {
		return nil, errInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Remote("sign in", err)
	}

	ok, err := s.hasher.Verify(u.PasswordHash, password)
	if err != nil {
		return nil, apperr.Remote("verify password", err)
	}
	if !ok {
		return nil, errInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(u.ID.String(), string(u.Role))
	if err != nil {
		return nil, apperr.Remote("issue session", err)
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

// SignOut revokes the session described by claims until it expires.
func (s *Service) SignOut(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return apperr.Unauthorized("no active session")
	}
	if claims.ExpiresAt == nil {
		return apperr.Unauthorized("session has no expiry")
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return apperr.Remote("sign out", err)
	}
	return nil
}

// Me returns the caller's own user record.
func (s *Service) Me(ctx context.Context, p Principal) (*User, error) {
	if !p.Authenticated() {
		return nil, apperr.Unauthorized("authentication required")
	}
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Remote("load user", err)
	}
	return u, nil
}

// CreateAdmin provisions an admin account. It is only reachable from the CLI.
func (s *Service) CreateAdmin(ctx context.Context, email, password, fullName string) (*User, error) {
	email, fullName, err := validateAccount(email, password, fullName)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Remote("hash password", err)
	}
	u := &User{Email: email, Role: RoleAdmin, FullName: fullName, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, apperr.Remote("create admin", err)
	}
	return u, nil
}
