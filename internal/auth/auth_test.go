package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

func signToken(t *testing.T, adminID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func identityEcho(t *testing.T, captured **Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAcceptsSignedToken(t *testing.T) {
	adminID := uuid.New()
	var got *Identity
	handler := Middleware(Config{Secret: testSecret})(identityEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, adminID, RoleSuperadmin))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if got == nil || got.AdminID != adminID || got.Role != RoleSuperadmin {
		t.Fatalf("identity not extracted: %+v", got)
	}
}

func TestMiddlewareDefaultsRoleToAdmin(t *testing.T) {
	adminID := uuid.New()
	var got *Identity
	handler := Middleware(Config{Secret: testSecret})(identityEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, adminID, ""))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got == nil || got.Role != RoleAdmin {
		t.Fatalf("empty role claim should default to admin: %+v", got)
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	handler := Middleware(Config{Secret: testSecret})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"garbage":      "Bearer not-a-token",
		"wrong secret": "Bearer " + func() string { s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: uuid.NewString()}).SignedString([]byte("other")); return s }(),
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status %d, want 401", name, rec.Code)
		}
	}
}

func TestDebugHeaderBypass(t *testing.T) {
	adminID := uuid.New()
	var got *Identity
	handler := Middleware(Config{Secret: testSecret, AllowDebugToken: true})(identityEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Debug-Admin", adminID.String()+":superadmin")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if got == nil || got.AdminID != adminID || got.Role != RoleSuperadmin {
		t.Fatalf("debug identity wrong: %+v", got)
	}

	// Disabled bypass ignores the header entirely.
	var ignored *Identity
	strict := Middleware(Config{Secret: testSecret})(identityEcho(t, &ignored))
	rec = httptest.NewRecorder()
	strict.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("debug header must be ignored when disabled, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	protected := RequireRole(RoleSuperadmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), &Identity{AdminID: uuid.New(), Role: RoleAdmin}))
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("admin hitting a superadmin route: status %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), &Identity{AdminID: uuid.New(), Role: RoleSuperadmin}))
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("superadmin rejected: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous request: status %d, want 401", rec.Code)
	}
}
