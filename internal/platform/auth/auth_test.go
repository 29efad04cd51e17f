package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

func newVerifier() Verifier { return Verifier{Secret: testSecret} }

func mustSign(t *testing.T, subject, role string, ttl time.Duration) string {
	t.Helper()
	tok, err := Sign(testSecret, subject, role, ttl)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestVerifier_RoundTrip(t *testing.T) {
	claims, err := newVerifier().Parse(mustSign(t, "ops", RoleAdmin, time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "ops" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifier_Expired(t *testing.T) {
	if _, err := newVerifier().Parse(mustSign(t, "ops", RoleAdmin, -time.Minute)); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifier_MissingExpiry(t *testing.T) {
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"},
		Role:             RoleAdmin,
	}).SignedString(testSecret)
	if _, err := newVerifier().Parse(tok); err == nil {
		t.Fatal("expected error for token without exp")
	}
}

func TestVerifier_WrongSecret(t *testing.T) {
	tok := mustSign(t, "ops", RoleAdmin, time.Hour)
	if _, err := (Verifier{Secret: []byte("other")}).Parse(tok); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestVerifier_EmptySecret(t *testing.T) {
	if _, err := (Verifier{}).Parse(mustSign(t, "ops", RoleAdmin, time.Hour)); err == nil {
		t.Fatal("expected error for verifier without secret")
	}
}

func TestVerifier_Tampered(t *testing.T) {
	parts := strings.Split(mustSign(t, "ops", "viewer", time.Hour), ".")
	if _, err := newVerifier().Parse(parts[0] + ".dGFtcGVyZWQ." + parts[2]); err == nil {
		t.Fatal("expected error for tampered token")
	}
}

func serveGuarded(authz string) (*httptest.ResponseRecorder, string) {
	var subject string
	h := RequireRole(newVerifier(), RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/videos/1", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, subject
}

func TestRequireRole_Admin(t *testing.T) {
	rr, subject := serveGuarded("Bearer " + mustSign(t, "ops", "ADMIN", time.Hour))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if subject != "ops" {
		t.Fatalf("expected subject in context, got %q", subject)
	}
}

func TestRequireRole_OtherRole(t *testing.T) {
	rr, _ := serveGuarded("Bearer " + mustSign(t, "viewer-1", "viewer", time.Hour))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequireRole_MissingHeader(t *testing.T) {
	rr, _ := serveGuarded("")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireRole_NonBearer(t *testing.T) {
	rr, _ := serveGuarded("Basic dXNlcjpwYXNz")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireRole_EmptySubject(t *testing.T) {
	rr, _ := serveGuarded("Bearer " + mustSign(t, "", RoleAdmin, time.Hour))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
