package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryGuardSuppressesDuplicates(t *testing.T) {
	guard := NewMemoryGuard(time.Minute)
	ctx := context.Background()

	ok, err := guard.Begin(ctx, "click:a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = guard.Begin(ctx, "click:a")
	require.NoError(t, err)
	require.False(t, ok)

	// A different key is unaffected.
	ok, err = guard.Begin(ctx, "click:b")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryGuardEndReleasesKey(t *testing.T) {
	guard := NewMemoryGuard(time.Minute)
	ctx := context.Background()

	ok, err := guard.Begin(ctx, "click:a")
	require.NoError(t, err)
	require.True(t, ok)

	guard.End(ctx, "click:a")

	ok, err = guard.Begin(ctx, "click:a")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryGuardTTLExpiry(t *testing.T) {
	guard := NewMemoryGuard(10 * time.Millisecond)
	ctx := context.Background()

	ok, err := guard.Begin(ctx, "click:a")
	require.NoError(t, err)
	require.True(t, ok)

	// A crashed holder never calls End; the TTL frees the key.
	require.Eventually(t, func() bool {
		ok, err := guard.Begin(ctx, "click:a")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)
}
