package identity

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/pkg/apperr"
)

// Role is fixed at registration.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", apperr.Validation("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	FullName     string    `json:"full_name"`
	Phone        *string   `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal is the authenticated caller of an operation. The zero value is
// the anonymous caller.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) Authenticated() bool {
	return p.UserID != uuid.Nil && p.Role.Valid()
}

// PrincipalFromContext derives the caller from the verified session claims
// on ctx. ok is false for anonymous requests and for claims that do not
// describe a known role.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return Principal{}, false
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, false
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Principal{}, false
	}
	return Principal{UserID: userID, Role: role}, true
}

// DoctorProfile is the practice information a doctor supplies at sign-up.
type DoctorProfile struct {
	Specialty       string  `json:"specialty"`
	ExperienceYears int     `json:"experience_years"`
	Qualification   string  `json:"qualification"`
	ConsultationFee float64 `json:"consultation_fee"`
	Location        string  `json:"location"`
	Bio             *string `json:"bio,omitempty"`
}

func (p *DoctorProfile) Validate() error {
	p.Specialty = strings.TrimSpace(p.Specialty)
	p.Qualification = strings.TrimSpace(p.Qualification)
	p.Location = strings.TrimSpace(p.Location)

	switch {
	case p.Specialty == "":
		return apperr.Validation("specialty is required")
	case p.Qualification == "":
		return apperr.Validation("qualification is required")
	case p.Location == "":
		return apperr.Validation("location is required")
	case p.ExperienceYears < 0:
		return apperr.Validation("experience_years must not be negative")
	case p.ConsultationFee < 0:
		return apperr.Validation("consultation_fee must not be negative")
	}
	return nil
}

const minPasswordLength = 6

type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	FullName string         `json:"full_name"`
	Phone    *string        `json:"phone,omitempty"`
	Role     Role           `json:"role"`
	Doctor   *DoctorProfile `json:"doctor,omitempty"`
}

// Validate normalizes the request in place.
func (r *SignUpRequest) Validate() error {
	email, fullName, err := validateAccount(r.Email, r.Password, r.FullName)
	if err != nil {
		return err
	}
	r.Email, r.FullName = email, fullName
	if r.Phone != nil && strings.TrimSpace(*r.Phone) == "" {
		r.Phone = nil
	}

	switch r.Role {
	case RolePatient:
		r.Doctor = nil
	case RoleDoctor:
		if r.Doctor == nil {
			return apperr.Validation("doctor profile is required for doctor sign-up")
		}
		return r.Doctor.Validate()
	case RoleAdmin:
		return apperr.Validation("admin accounts cannot be created by sign-up")
	default:
		return apperr.Validation("role must be patient or doctor")
	}
	return nil
}

// validateAccount checks the fields every account has and returns the
// normalized email and full name.
func validateAccount(email, password, fullName string) (string, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", "", err
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return "", "", apperr.Validation("full_name is required")
	}
	if len(password) < minPasswordLength {
		return "", "", apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	return email, fullName, nil
}

func normalizeEmail(s string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(s))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("email is not valid")
	}
	return email, nil
}

// Session is returned by SignIn.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
