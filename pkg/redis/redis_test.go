package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBlacklistTest(t *testing.T) (*TokenBlacklist, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	c := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		c.Close()
	})

	return NewTokenBlacklist(c), mr
}

func TestTokenBlacklist(t *testing.T) {
	blacklist, _ := setupBlacklistTest(t)
	ctx := context.Background()

	t.Run("Unknown token is not blacklisted", func(t *testing.T) {
		revoked, err := blacklist.IsBlacklisted(ctx, "some-token")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("Blacklisted token is found", func(t *testing.T) {
		require.NoError(t, blacklist.Blacklist(ctx, "revoked-token", time.Hour))

		revoked, err := blacklist.IsBlacklisted(ctx, "revoked-token")
		require.NoError(t, err)
		assert.True(t, revoked)
	})
}

func TestTokenBlacklist_Expiry(t *testing.T) {
	blacklist, mr := setupBlacklistTest(t)
	ctx := context.Background()

	require.NoError(t, blacklist.Blacklist(ctx, "short-lived", time.Minute))

	// The entry disappears once the token itself would have expired
	mr.FastForward(2 * time.Minute)

	revoked, err := blacklist.IsBlacklisted(ctx, "short-lived")
	require.NoError(t, err)
	assert.False(t, revoked)
}
