package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mcclellann/loankart/pkg/models"
)

var ErrForbidden = errors.New("administrator role required")

// Session is the authenticated caller, resolved once per request from the bearer token.
type Session struct {
	UserID uuid.UUID
	Email  string
	Role   models.Role
}

func (s Session) IsAdmin() bool {
	return s.Role == models.RoleAdmin
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom extracts the session from the context.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

func writeAuthError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// RequireAuth validates the bearer token and stores the caller's Session in the request context.
func RequireAuth(jwtManager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, ErrMissingToken)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeAuthError(w, http.StatusUnauthorized, ErrInvalidToken)
				return
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, ErrInvalidToken)
				return
			}
			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, ErrInvalidToken)
				return
			}

			ctx := WithSession(r.Context(), Session{UserID: userID, Email: claims.Email, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose session is not an administrator. It must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFrom(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, ErrMissingToken)
			return
		}
		if !s.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
