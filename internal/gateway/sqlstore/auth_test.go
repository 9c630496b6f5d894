package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSessionStore struct {
	mu sync.Mutex
	s  *gateway.Session
}

func (m *memSessionStore) LoadSession(context.Context) (*gateway.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *memSessionStore) SaveSession(_ context.Context, s *gateway.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func (m *memSessionStore) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

func newTestAuth(t *testing.T, store gateway.SessionStore) *Auth {
	t.Helper()
	a, err := NewAuth(setupSQLite(t), "test-secret", store)
	require.NoError(t, err)
	return a
}

func TestNewAuth_RequiresSecret(t *testing.T) {
	t.Parallel()
	_, err := NewAuth(nil, "", nil)
	assert.Error(t, err)
}

func TestAuth_SignUpAndSignIn(t *testing.T) {
	t.Parallel()
	store := &memSessionStore{}
	a := newTestAuth(t, store)
	ctx := context.Background()

	s, err := a.SignUp(ctx, "Alice@Example.com", "Secret123!", gateway.UserMetadata{FullName: models.StringPtr("Alice")})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "alice@example.com", s.User.Email)
	assert.Equal(t, "Alice", models.Deref(s.User.Metadata.FullName))
	assert.NotEmpty(t, s.RefreshToken)
	assert.Same(t, s, store.s)

	_, err = a.SignUp(ctx, "alice@example.com", "Another1!", gateway.UserMetadata{})
	assert.True(t, models.IsConflict(err), "got %v", err)

	_, err = a.SignIn(ctx, "alice@example.com", "wrong")
	assert.Equal(t, models.CodeUnauthorized, models.CodeOf(err))

	_, err = a.SignIn(ctx, "nobody@example.com", "Secret123!")
	assert.Equal(t, models.CodeUnauthorized, models.CodeOf(err))

	s2, err := a.SignIn(ctx, "ALICE@example.com", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, s2.User.ID)

	u, err := a.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, u.ID)
}

func TestAuth_RefreshAndSignOut(t *testing.T) {
	t.Parallel()
	store := &memSessionStore{}
	a := newTestAuth(t, store)
	ctx := context.Background()

	_, err := a.Refresh(ctx)
	assert.ErrorIs(t, err, gateway.ErrNoSession)

	s, err := a.SignUp(ctx, "bob@example.com", "Secret123!", gateway.UserMetadata{})
	require.NoError(t, err)

	a.now = func() time.Time { return time.Now().Add(time.Minute) }
	refreshed, err := a.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, refreshed.User.ID)
	assert.True(t, refreshed.ExpiresAt.After(s.ExpiresAt))

	require.NoError(t, a.SignOut(ctx))
	assert.Nil(t, a.CurrentSession())
	assert.Nil(t, store.s)

	_, err = a.CurrentUser(ctx)
	assert.ErrorIs(t, err, gateway.ErrNoSession)
}

func TestAuth_AccessTokenCannotRefresh(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t, nil)
	ctx := context.Background()

	s, err := a.SignUp(ctx, "carol@example.com", "Secret123!", gateway.UserMetadata{})
	require.NoError(t, err)

	_, err = a.verify(s.AccessToken, refreshTokenTy)
	assert.Equal(t, models.CodeUnauthorized, models.CodeOf(err))
	sub, err := a.verify(s.RefreshToken, refreshTokenTy)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, sub)
}

func TestAuth_Restore(t *testing.T) {
	t.Parallel()
	store := &memSessionStore{}
	a := newTestAuth(t, store)
	ctx := context.Background()

	s, err := a.SignUp(ctx, "dave@example.com", "Secret123!", gateway.UserMetadata{})
	require.NoError(t, err)

	b := &Auth{db: a.db, secret: a.secret, store: store, now: time.Now}
	require.NoError(t, b.Restore(ctx))
	require.NotNil(t, b.CurrentSession())
	assert.Equal(t, s.User.ID, b.CurrentSession().User.ID)

	store.s = &gateway.Session{AccessToken: "garbage"}
	c := &Auth{db: a.db, secret: a.secret, store: store, now: time.Now}
	require.NoError(t, c.Restore(ctx))
	assert.Nil(t, c.CurrentSession())
	assert.Nil(t, store.s)
}

func TestAuth_UpdateUserMetadata(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t, nil)
	ctx := context.Background()

	_, err := a.SignUp(ctx, "erin@example.com", "Secret123!", gateway.UserMetadata{})
	require.NoError(t, err)

	u, err := a.UpdateUserMetadata(ctx, gateway.UserMetadata{FullName: models.StringPtr("Erin E.")})
	require.NoError(t, err)
	assert.Equal(t, "Erin E.", models.Deref(u.Metadata.FullName))
	assert.Equal(t, "Erin E.", models.Deref(a.CurrentSession().User.Metadata.FullName))
}

func TestAuth_IDTokenUnsupported(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t, nil)
	_, err := a.SignInWithIDToken(context.Background(), "google", "token")
	assert.True(t, models.IsValidation(err))
}
