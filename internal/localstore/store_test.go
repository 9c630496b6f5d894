package localstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, device string) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := New(client, device)
	// a frozen clock forces the store to keep timestamps strictly increasing
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return s, mr
}

func entry(id string) models.RecentSearchEntry {
	return models.RecentSearchEntry{UserID: id, Username: "user_" + id, DisplayName: models.StringPtr("User " + id)}
}

func userIDs(es []models.RecentSearchEntry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.UserID
	}
	return out
}

func TestProfile(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, "dev1")
	ctx := context.Background()

	p, err := s.LoadProfile(ctx)
	require.NoError(t, err)
	assert.True(t, p.Empty())

	want := models.CachedProfile{Name: "Alice", AvatarURL: "https://x/a.jpg?v=1", Username: "alice", AvatarPath: "u1/avatar.jpg"}
	require.NoError(t, s.SaveProfile(ctx, want))
	got, err := s.LoadProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.SaveProfile(ctx, models.CachedProfile{Name: "Bob"}))
	got, err = s.LoadProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CachedProfile{Name: "Bob"}, got)

	require.NoError(t, s.ClearProfile(ctx))
	got, err = s.LoadProfile(ctx)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestRecent_NewestFirstAndDeduplicated(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, "dev1")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "a"} {
		require.NoError(t, s.AddRecent(ctx, entry(id)))
	}
	got, err := s.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, userIDs(got))
	assert.Greater(t, got[0].Timestamp, got[1].Timestamp)
	assert.Greater(t, got[1].Timestamp, got[2].Timestamp)
	assert.Equal(t, "User a", models.Deref(got[0].DisplayName))
}

func TestRecent_CapEvictsOldest(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t, "dev1")
	ctx := context.Background()

	for i := 0; i < MaxRecentSearches+2; i++ {
		require.NoError(t, s.AddRecent(ctx, entry(fmt.Sprint(i))))
	}
	got, err := s.ListRecent(ctx)
	require.NoError(t, err)
	require.Len(t, got, MaxRecentSearches)
	assert.Equal(t, "11", got[0].UserID)
	assert.Equal(t, "2", got[len(got)-1].UserID)

	keys, err := mr.HKeys(s.key(recentHKeyFmt))
	require.NoError(t, err)
	assert.Len(t, keys, MaxRecentSearches)
	assert.NotContains(t, keys, "0")
	assert.NotContains(t, keys, "1")
}

func TestRecent_RemoveAndClear(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, "dev1")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.AddRecent(ctx, entry(id)))
	}
	require.NoError(t, s.RemoveRecent(ctx, "b"))
	got, err := s.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, userIDs(got))

	require.NoError(t, s.RemoveRecent(ctx, "missing"))
	require.NoError(t, s.ClearRecent(ctx))
	got, err = s.ListRecent(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDevicesAreIsolated(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	a, b := New(client, "phone"), New(client, "tablet")
	require.NoError(t, a.AddRecent(ctx, entry("x")))
	require.NoError(t, a.SaveProfile(ctx, models.CachedProfile{Name: "A"}))

	got, err := b.ListRecent(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	p, err := b.LoadProfile(ctx)
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestSession(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, "")
	ctx := context.Background()

	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	want := &gateway.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		User: gateway.AuthUser{
			ID: "u1", Email: "a@example.com", Provider: "email",
			Metadata: gateway.UserMetadata{FullName: models.StringPtr("Alice")},
		},
	}
	require.NoError(t, s.SaveSession(ctx, want))
	got, err = s.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, want.User.ID, got.User.ID)
	assert.Equal(t, "Alice", models.Deref(got.User.Metadata.FullName))

	require.NoError(t, s.SaveSession(ctx, nil))
	got, err = s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSession_Corrupt(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t, "dev1")
	require.NoError(t, mr.Set(s.key(sessionKeyFmt), "{not json"))
	_, err := s.LoadSession(context.Background())
	assert.Error(t, err)
}
