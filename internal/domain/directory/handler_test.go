package directory

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/domain/identity"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/pkg/apperr"
)

func withPrincipal(req *http.Request, p identity.Principal) *http.Request {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(p.Role),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestHandler_ListDoctors(t *testing.T) {
	svc, _ := newSeededService()
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors?q=cardio&location=Mumbai", nil)
	rec := httptest.NewRecorder()
	if err := h.ListDoctors(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Data  []*Doctor `json:"data"`
		Total int       `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Data[0].FullName != "Chen Li" {
		t.Errorf("unexpected result: %+v", body)
	}
}

func TestHandler_GetDoctor(t *testing.T) {
	svc, repo := newSeededService()
	h := NewHandler(svc)
	e := echo.New()
	pending := repo.seed("Jo March", "Oncology", "Pune", StatusPending)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(pending.ID.String())
	if err := h.GetDoctor(c); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for anonymous viewer, got %v", err)
	}

	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if err := h.GetDoctor(c); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad id, got %v", err)
	}
}

func TestHandler_Approve(t *testing.T) {
	svc, repo := newSeededService()
	h := NewHandler(svc)
	e := echo.New()
	pending := repo.seed("Kai Lane", "Oncology", "Pune", StatusPending)

	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/", nil), admin)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(pending.ID.String())

	if err := h.Approve(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var d Doctor
	json.Unmarshal(rec.Body.Bytes(), &d)
	if d.Status != StatusApproved {
		t.Errorf("expected approved, got %s", d.Status)
	}
}

func TestHandler_ListForReview_BadStatus(t *testing.T) {
	svc, _ := newSeededService()
	h := NewHandler(svc)
	e := echo.New()

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/v1/admin/doctors?status=bogus", nil), admin)
	if err := h.ListForReview(e.NewContext(req, httptest.NewRecorder())); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRoutes_RoleGuards(t *testing.T) {
	svc, _ := newSeededService()
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	patient := identity.Principal{UserID: uuid.New(), Role: identity.RolePatient}
	tests := []struct {
		name   string
		method string
		path   string
		who    *identity.Principal
		want   int
	}{
		{"public list", http.MethodGet, "/api/v1/doctors", nil, http.StatusOK},
		{"public facets", http.MethodGet, "/api/v1/doctors/facets", nil, http.StatusOK},
		{"admin list anonymous", http.MethodGet, "/api/v1/admin/doctors", nil, http.StatusUnauthorized},
		{"admin list as patient", http.MethodGet, "/api/v1/admin/doctors", &patient, http.StatusForbidden},
		{"admin list as admin", http.MethodGet, "/api/v1/admin/doctors", &admin, http.StatusOK},
		{"profile as patient", http.MethodGet, "/api/v1/doctor/profile", &patient, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.who != nil {
				req = withPrincipal(req, *tt.who)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
