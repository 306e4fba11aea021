package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

type failingStore struct{}

func (failingStore) Revoke(context.Context, string, time.Time) error { return errors.New("down") }
func (failingStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func newTestIssuer() *Issuer {
	return NewIssuer(testSigningKey, "docbook-test", time.Hour)
}

// runAuth runs Authenticate in front of a handler that records the claims it
// saw.
func runAuth(t *testing.T, header string, store RevocationStore) (*Claims, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Claims
	handler := func(c echo.Context) error {
		seen, _ = ClaimsFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}
	err := Authenticate(newTestIssuer(), store, zerolog.Nop())(handler)(c)
	return seen, err
}

func assertHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestAuthenticate_NoHeaderPassesThrough(t *testing.T) {
	store := NewMemoryRevocationStore(time.Minute)
	defer store.Close()

	claims, err := runAuth(t, "", store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims != nil {
		t.Error("expected no claims for anonymous request")
	}
}

func TestAuthenticate_InvalidFormat(t *testing.T) {
	store := NewMemoryRevocationStore(time.Minute)
	defer store.Close()

	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runAuth(t, tt.header, store)
			assertHTTPStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestAuthenticate_ValidToken(t *testing.T) {
	store := NewMemoryRevocationStore(time.Minute)
	defer store.Close()

	token, issued, err := newTestIssuer().Issue("user-1", "patient")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := runAuth(t, "Bearer "+token, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims == nil {
		t.Fatal("expected claims on context")
	}
	if claims.Subject != "user-1" || claims.Role != "patient" || claims.ID != issued.ID {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestAuthenticate_WrongKey(t *testing.T) {
	store := NewMemoryRevocationStore(time.Minute)
	defer store.Close()

	other := NewIssuer([]byte("another-secret-key-entirely-different"), "docbook-test", time.Hour)
	token, _, err := other.Issue("user-1", "patient")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = runAuth(t, "Bearer "+token, store)
	assertHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestAuthenticate_RevokedToken(t *testing.T) {
	store := NewMemoryRevocationStore(time.Minute)
	defer store.Close()

	token, claims, err := newTestIssuer().Issue("user-1", "doctor")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := store.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, err = runAuth(t, "Bearer "+token, store)
	assertHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestAuthenticate_RevocationLookupFailure(t *testing.T) {
	token, _, err := newTestIssuer().Issue("user-1", "doctor")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := runAuth(t, "Bearer "+token, failingStore{})
	if err != nil {
		t.Fatalf("expected request to continue, got %v", err)
	}
	if claims != nil {
		t.Error("expected request to continue without claims")
	}
}

func runGuard(t *testing.T, mw echo.MiddlewareFunc, claims *Claims) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if claims != nil {
		req = req.WithContext(WithClaims(req.Context(), claims))
	}
	c := e.NewContext(req, httptest.NewRecorder())
	return mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
}

func TestRequireAuth(t *testing.T) {
	assertHTTPStatus(t, runGuard(t, RequireAuth(), nil), http.StatusUnauthorized)

	if err := runGuard(t, RequireAuth(), &Claims{Role: "patient"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole("patient")

	assertHTTPStatus(t, runGuard(t, mw, nil), http.StatusUnauthorized)
	assertHTTPStatus(t, runGuard(t, mw, &Claims{Role: "doctor"}), http.StatusForbidden)
	assertHTTPStatus(t, runGuard(t, mw, &Claims{Role: "admin"}), http.StatusForbidden)

	if err := runGuard(t, mw, &Claims{Role: "patient"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := runGuard(t, RequireRole("doctor", "admin"), &Claims{Role: "admin"}); err != nil {
		t.Errorf("unexpected error for admin: %v", err)
	}
}
