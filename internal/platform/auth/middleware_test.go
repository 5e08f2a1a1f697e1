package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func testMiddleware(t *testing.T, cfg JWTConfig) echo.MiddlewareFunc {
	t.Helper()
	kf, err := NewKeyfunc(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("keyfunc: %v", err)
	}
	return JWTMiddleware(cfg, kf)
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "https://idp.example",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TenantID: "acme",
		Roles:    []string{RoleEditor},
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	var seen echo.Context
	err := mw(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})(c)
	return seen, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestNewKeyfunc_RequiresSource(t *testing.T) {
	if _, err := NewKeyfunc(context.Background(), JWTConfig{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without JWKS URL or signing key")
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, testMiddleware(t, JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	mw := testMiddleware(t, JWTConfig{SigningKey: testSigningKey})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, mw, tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)
	c, err := runMiddleware(t, testMiddleware(t, JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := c.Request().Context()
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %q", uid)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 1 || roles[0] != RoleEditor {
		t.Errorf("unexpected roles: %v", roles)
	}
	if tid, _ := c.Get("jwt_tenant_id").(string); tid != "acme" {
		t.Errorf("expected tenant acme, got %q", tid)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := createTestToken(t, claims, testSigningKey)

	_, err := runMiddleware(t, testMiddleware(t, JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, validClaims(), []byte("some-other-key"))
	_, err := runMiddleware(t, testMiddleware(t, JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	claims := validClaims()
	claims.Audience = jwt.ClaimStrings{"referential"}
	token := createTestToken(t, claims, testSigningKey)

	ok := testMiddleware(t, JWTConfig{SigningKey: testSigningKey, Issuer: "https://idp.example", Audience: "referential"})
	if _, err := runMiddleware(t, ok, "Bearer "+token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	badIssuer := testMiddleware(t, JWTConfig{SigningKey: testSigningKey, Issuer: "https://other"})
	_, err := runMiddleware(t, badIssuer, "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)

	badAudience := testMiddleware(t, JWTConfig{SigningKey: testSigningKey, Audience: "billing"})
	_, err = runMiddleware(t, badAudience, "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_NoHeader(t *testing.T) {
	c, err := runMiddleware(t, DevAuthMiddleware(nil), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := c.Request().Context()
	if uid := UserIDFromContext(ctx); uid != "dev-user" {
		t.Errorf("expected dev-user, got %q", uid)
	}
	if !HasRole(RolesFromContext(ctx), RoleEditor) {
		t.Error("expected dev user to have admin access")
	}
}

func TestDevAuthMiddleware_DelegatesWithHeader(t *testing.T) {
	verify := testMiddleware(t, JWTConfig{SigningKey: testSigningKey})

	_, err := runMiddleware(t, DevAuthMiddleware(verify), "Bearer bogus")
	expectStatus(t, err, http.StatusUnauthorized)

	token := createTestToken(t, validClaims(), testSigningKey)
	c, err := runMiddleware(t, DevAuthMiddleware(verify), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid := UserIDFromContext(c.Request().Context()); uid != "user-123" {
		t.Errorf("expected user-123, got %q", uid)
	}
}
