package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSessionKey = []byte("0123456789abcdef0123456789abcdef")

func TestSessionGateIssueValidateRevoke(t *testing.T) {
	ctx := context.Background()
	gate := NewSessionGate(testSessionKey, NewMemorySessionStore(), time.Hour)

	token, err := gate.Issue(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.True(t, gate.Validate(ctx, token))
	require.NoError(t, gate.RequireAuthenticated(ctx, token))

	require.NoError(t, gate.Revoke(ctx, token))
	assert.False(t, gate.Validate(ctx, token), "revocation takes effect immediately")
	assert.ErrorIs(t, gate.RequireAuthenticated(ctx, token), ErrAuthRequired)

	// Revoking again is a no-op.
	require.NoError(t, gate.Revoke(ctx, token))
}

func TestSessionGateRejectsForgedTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	gate := NewSessionGate(testSessionKey, store, time.Hour)

	token, err := gate.Issue(ctx)
	require.NoError(t, err)

	assert.False(t, gate.Validate(ctx, ""), "empty token")
	assert.False(t, gate.Validate(ctx, token+"x"), "tampered token")

	// A token signed with a different key is rejected even though the
	// session id it wraps is live in the shared store.
	otherGate := NewSessionGate([]byte("another-signing-key-entirely!!!!"), store, time.Hour)
	assert.False(t, otherGate.Validate(ctx, token))

	assert.ErrorIs(t, gate.RequireAuthenticated(ctx, "garbage"), ErrAuthRequired)
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	gate := NewSessionGate(testSessionKey, store, time.Hour)
	token, err := gate.Issue(ctx)
	require.NoError(t, err)
	assert.True(t, gate.Validate(ctx, token))

	current = current.Add(2 * time.Hour)
	assert.False(t, gate.Validate(ctx, token), "expired session is invalid")
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisSessionStore(client)
	gate := NewSessionGate(testSessionKey, store, time.Hour)

	token, err := gate.Issue(ctx)
	require.NoError(t, err)
	assert.True(t, gate.Validate(ctx, token))

	require.NoError(t, gate.Revoke(ctx, token))
	assert.False(t, gate.Validate(ctx, token))

	// Expiry rides on the redis key TTL.
	token, err = gate.Issue(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	assert.False(t, gate.Validate(ctx, token))
}
