package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcclellann/loankart/pkg/models"
	"github.com/mcclellann/loankart/pkg/store"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (m *memUsers) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return store.ErrEmailTaken
	}
	m.users[u.Email] = u
	return nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func newAuthenticator() *PasswordAuthenticator {
	a := NewPasswordAuthenticator(&memUsers{users: map[string]*models.User{}})
	a.cost = bcrypt.MinCost
	return a
}

func TestValidateCredential(t *testing.T) {
	a := newAuthenticator()
	assert.NoError(t, a.ValidateCredential("Str0ng!pass"))
	for _, weak := range []string{"Sh0rt!", "alllower1!", "ALLUPPER1!", "NoDigits!!", "NoSpecial12"} {
		assert.ErrorIs(t, a.ValidateCredential(weak), ErrWeakPassword, weak)
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("asha@example.com"))
	for _, bad := range []string{"", "asha", "asha@", "Asha <asha@example.com>", "asha@localhost"} {
		assert.ErrorIs(t, ValidateEmail(bad), ErrInvalidEmail, bad)
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	a := newAuthenticator()
	ctx := context.Background()

	u, err := a.Register(ctx, "  Asha@Example.com ", "Asha", "Rao", "Str0ng!pass")
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.NotEqual(t, "Str0ng!pass", u.PasswordHash)

	_, err = a.Register(ctx, "asha@example.com", "Asha", "Rao", "Str0ng!pass")
	assert.ErrorIs(t, err, ErrEmailExists)

	got, err := a.Authenticate(ctx, "ASHA@example.com", "Str0ng!pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = a.Authenticate(ctx, "asha@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Authenticate(ctx, "nobody@example.com", "Str0ng!pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureAdmin(t *testing.T) {
	a := newAuthenticator()
	ctx := context.Background()

	admin, err := a.EnsureAdmin(ctx, "root@example.com", "Adm1n!pass")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	again, err := a.EnsureAdmin(ctx, "root@example.com", "Adm1n!pass")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
}

func TestEnsureAdminRefusesBorrowerEmail(t *testing.T) {
	a := newAuthenticator()
	ctx := context.Background()

	_, err := a.Register(ctx, "taken@example.com", "Bo", "Rower", "Str0ng!pass")
	require.NoError(t, err)

	_, err = a.EnsureAdmin(ctx, "Taken@example.com", "Adm1n!pass")
	assert.ErrorIs(t, err, ErrNotAdmin)

	user, err := a.Authenticate(ctx, "taken@example.com", "Str0ng!pass")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	user := &models.User{ID: uuid.New(), Email: "asha@example.com", Role: models.RoleAdmin}

	token, err := m.Generate(user)
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	_, err = NewJWTManager("other-secret", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTManager("test-secret", -time.Minute).Generate(user)
	require.NoError(t, err)
	_, err = m.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	borrower := &models.User{ID: uuid.New(), Email: "b@example.com", Role: models.RoleUser}
	admin := &models.User{ID: uuid.New(), Email: "a@example.com", Role: models.RoleAdmin}

	var seen Session
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	authed := RequireAuth(m)(inner)
	adminOnly := RequireAuth(m)(RequireAdmin(inner))

	do := func(h http.Handler, token string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	bt, err := m.Generate(borrower)
	require.NoError(t, err)
	at, err := m.Generate(admin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(authed, ""))
	assert.Equal(t, http.StatusUnauthorized, do(authed, "garbage"))
	assert.Equal(t, http.StatusNoContent, do(authed, bt))
	assert.Equal(t, borrower.ID, seen.UserID)
	assert.False(t, seen.IsAdmin())

	assert.Equal(t, http.StatusForbidden, do(adminOnly, bt))
	assert.Equal(t, http.StatusNoContent, do(adminOnly, at))
	assert.True(t, seen.IsAdmin())
}
