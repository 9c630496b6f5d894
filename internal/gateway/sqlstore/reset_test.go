package sqlstore

import (
	"context"
	"testing"
	"time"

	"frzterr/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReset_CodeFlow(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t, nil)
	ctx := context.Background()
	_, err := a.SignUp(ctx, "bob@example.com", "oldpass123", gateway.UserMetadata{})
	require.NoError(t, err)

	var sent string
	r := NewReset(a, func(_ context.Context, email, code string) {
		assert.Equal(t, "bob@example.com", email)
		sent = code
	})

	ok, err := r.SendResetCode(ctx, " BOB@example.com ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sent, 6)

	ok, err = r.VerifyResetCode(ctx, "bob@example.com", "nope", "newpass123")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.VerifyResetCode(ctx, "bob@example.com", sent, "newpass123")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = a.SignIn(ctx, "bob@example.com", "newpass123")
	assert.NoError(t, err)
	_, err = a.SignIn(ctx, "bob@example.com", "oldpass123")
	assert.Error(t, err)

	// single use
	ok, err = r.VerifyResetCode(ctx, "bob@example.com", sent, "other123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset_UnknownEmail(t *testing.T) {
	t.Parallel()
	r := NewReset(newTestAuth(t, nil), func(context.Context, string, string) {
		t.Fatal("nothing should be delivered")
	})
	ok, err := r.SendResetCode(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset_Expired(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t, nil)
	ctx := context.Background()
	_, err := a.SignUp(ctx, "c@example.com", "oldpass123", gateway.UserMetadata{})
	require.NoError(t, err)

	var sent string
	r := NewReset(a, func(_ context.Context, _, code string) { sent = code })
	_, err = r.SendResetCode(ctx, "c@example.com")
	require.NoError(t, err)

	a.now = func() time.Time { return time.Now().Add(time.Hour) }
	ok, err := r.VerifyResetCode(ctx, "c@example.com", sent, "newpass123")
	require.NoError(t, err)
	assert.False(t, ok)
}
