// Package auth extracts the caller's identity from a bearer token. The core
// trusts this identity and enforces its own state-machine guards
// independently of role; role gating here only protects the
// superadmin-facing routes.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "console.identity"

// Identity is the authenticated caller.
type Identity struct {
	AdminID uuid.UUID
	Role    string
}

// FromContext returns the Identity stored in the request context, or nil.
func FromContext(ctx context.Context) *Identity {
	v := ctx.Value(ctxKeyIdentity)
	if v == nil {
		return nil
	}
	if id, ok := v.(*Identity); ok {
		return id
	}
	return nil
}

// WithIdentity returns ctx carrying the identity; used by tests.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Config controls token verification.
type Config struct {
	Secret string

	// AllowDebugToken accepts "X-Debug-Admin: <adminId>[:role]" instead of a
	// signed token. Development only.
	AllowDebugToken bool
}

// Middleware authenticates requests with an HS256 bearer token whose subject
// is the admin id and whose role claim is admin or superadmin.
func Middleware(cfg Config) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AllowDebugToken {
				if header := r.Header.Get("X-Debug-Admin"); header != "" {
					id, err := parseDebugHeader(header)
					if err != nil {
						unauthorized(w, err.Error())
						return
					}
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}

			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			id, err := verify(raw, cfg.Secret)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func verify(raw, secret string) (*Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	adminID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("subject is not an admin id: %w", err)
	}
	role := c.Role
	if role == "" {
		role = RoleAdmin
	}
	return &Identity{AdminID: adminID, Role: role}, nil
}

func parseDebugHeader(header string) (*Identity, error) {
	parts := strings.SplitN(header, ":", 2)
	adminID, err := uuid.Parse(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid debug admin id")
	}
	role := RoleAdmin
	if len(parts) == 2 && parts[1] != "" {
		role = parts[1]
	}
	return &Identity{AdminID: adminID, Role: role}, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("bearer "):])
}

// RequireRole rejects requests whose identity lacks the given role.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				unauthorized(w, "not authenticated")
				return
			}
			if id.Role != role {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "insufficient role"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
