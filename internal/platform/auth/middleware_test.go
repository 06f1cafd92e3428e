package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testCfg = JWTConfig{
	Issuer:     "clinic-test",
	Audience:   "clinic-api",
	SigningKey: []byte("test-signing-key-test-signing-key"),
}

func okHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":  UserIDFromContext(c.Request().Context()),
		"roles": RolesFromContext(c.Request().Context()),
	})
}

func runWithAuth(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots", nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(okHandler)(c)
}

func TestIssueAndParseToken(t *testing.T) {
	tok, err := IssueToken(testCfg, "user-1", []string{RolePhysician}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := ParseToken(testCfg, tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != RolePhysician {
		t.Errorf("unexpected roles %v", claims.Roles)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	valid, _ := IssueToken(testCfg, "user-1", nil, time.Hour)
	expired, _ := IssueToken(testCfg, "user-1", nil, -time.Minute)

	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"
	wrongIss, _ := IssueToken(otherIssuer, "user-1", nil, time.Hour)

	otherKey := testCfg
	otherKey.SigningKey = []byte("another-key-another-key-another-key")
	wrongKey, _ := IssueToken(otherKey, "user-1", nil, time.Hour)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: testCfg.Issuer, Audience: jwt.ClaimStrings{testCfg.Audience}},
	}).SignedString(testCfg.SigningKey)

	tests := map[string]string{
		"expired":      expired,
		"wrong issuer": wrongIss,
		"wrong key":    wrongKey,
		"no expiry":    noExp,
		"garbage":      "not.a.token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseToken(testCfg, tok); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := ParseToken(JWTConfig{}, valid); err == nil {
		t.Error("expected error without signing key")
	}
}

func TestJWTMiddleware(t *testing.T) {
	tok, _ := IssueToken(testCfg, "user-1", []string{RoleReceptionist}, time.Hour)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid", "Bearer " + tok, http.StatusOK},
		{"lowercase scheme", "bearer " + tok, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := runWithAuth(t, JWTMiddleware(testCfg), tt.header)
			status := rec.Code
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, status)
			}
		})
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := testCfg
	cfg.Skipper = func(echo.Context) bool { return true }
	rec, err := runWithAuth(t, JWTMiddleware(cfg), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	rec, err := runWithAuth(t, DevAuthMiddleware(testCfg), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"roles\":[\"admin\"],\"user\":\"dev-user\"}\n" {
		t.Errorf("unexpected body %s", body)
	}
}

func TestDevAuthMiddleware_VerifiesPresentToken(t *testing.T) {
	_, err := runWithAuth(t, DevAuthMiddleware(testCfg), "Bearer nope")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestIsPublicPath(t *testing.T) {
	for _, p := range []string{"/health", "/health/db", "/metrics"} {
		if !IsPublicPath(p) {
			t.Errorf("expected %s to be public", p)
		}
	}
	if IsPublicPath("/api/v1/slots") {
		t.Error("expected /api/v1/slots to require auth")
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	ctx := context.Background()
	if UserIDFromContext(ctx) != "" {
		t.Error("expected empty user id")
	}
	if RolesFromContext(ctx) != nil {
		t.Error("expected nil roles")
	}
}
