package loginguard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(now *time.Time) *Memory {
	g := NewMemory(Options{MaxFailures: 3, Window: time.Minute})
	g.now = func() time.Time { return *now }
	return g
}

func TestKey_NormalizesEmail(t *testing.T) {
	assert.Equal(t, "auth:login_fail:ann@x.com:10.0.0.1", Key(" Ann@X.com", "10.0.0.1"))
}

func TestMemory_LocksAfterMaxFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	g := newTestMemory(&now)
	ctx := context.Background()
	key := Key("ann@x.com", "10.0.0.1")

	for i := 0; i < 3; i++ {
		ok, _, err := g.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, ok, "attempt %d", i+1)
		require.NoError(t, g.Failure(ctx, key))
	}

	now = now.Add(20 * time.Second)

	ok, retry, err := g.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	// other client for the same account is unaffected
	ok, _, err = g.Allow(ctx, Key("ann@x.com", "10.0.0.2"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_WindowExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	g := newTestMemory(&now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Failure(ctx, "k"))
	}

	now = now.Add(time.Minute)

	ok, _, err := g.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	// a failure after expiry starts a fresh window
	require.NoError(t, g.Failure(ctx, "k"))
	ok, _, _ = g.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestMemory_ResetClears(t *testing.T) {
	now := time.Now()
	g := newTestMemory(&now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Failure(ctx, "k"))
	}
	require.NoError(t, g.Reset(ctx, "k"))

	ok, _, err := g.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOptions_Defaults(t *testing.T) {
	g := NewMemory(Options{})
	assert.Equal(t, DefaultMaxFailures, g.opts.MaxFailures)
	assert.Equal(t, DefaultWindow, g.opts.Window)
}
