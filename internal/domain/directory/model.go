package directory

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/pkg/apperr"
)

type DoctorStatus string

const (
	StatusPending  DoctorStatus = "pending"
	StatusApproved DoctorStatus = "approved"
	StatusRejected DoctorStatus = "rejected"
)

func ParseDoctorStatus(s string) (DoctorStatus, error) {
	st := DoctorStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", apperr.Validation("unknown doctor status %q", s)
}

// Doctor is a practitioner's directory entry. FullName and Email are read
// from the owning user.
type Doctor struct {
	ID              uuid.UUID    `json:"id"`
	UserID          uuid.UUID    `json:"user_id"`
	Specialty       string       `json:"specialty"`
	ExperienceYears int          `json:"experience_years"`
	Qualification   string       `json:"qualification"`
	ConsultationFee float64      `json:"consultation_fee"`
	Location        string       `json:"location"`
	Bio             *string      `json:"bio,omitempty"`
	Status          DoctorStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Filter narrows a directory listing. Blank fields are ignored and all set
// fields must match.
type Filter struct {
	// Text is matched case-insensitively as a substring of the full name or
	// the specialty.
	Text      string
	Specialty string
	Location  string
}

func (f Filter) normalize() Filter {
	return Filter{
		Text:      strings.ToLower(strings.TrimSpace(f.Text)),
		Specialty: strings.TrimSpace(f.Specialty),
		Location:  strings.TrimSpace(f.Location),
	}
}

// Match reports whether d satisfies every set field of f.
func (f Filter) Match(d *Doctor) bool {
	f = f.normalize()
	if f.Text != "" &&
		!strings.Contains(strings.ToLower(d.FullName), f.Text) &&
		!strings.Contains(strings.ToLower(d.Specialty), f.Text) {
		return false
	}
	if f.Specialty != "" && d.Specialty != f.Specialty {
		return false
	}
	if f.Location != "" && d.Location != f.Location {
		return false
	}
	return true
}

// Facets lists the distinct values the categorical filters can take.
type Facets struct {
	Specialties []string `json:"specialties"`
	Locations   []string `json:"locations"`
}
