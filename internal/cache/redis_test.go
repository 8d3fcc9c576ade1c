package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/config"
)

func newCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestPing(t *testing.T) {
	rc, _ := newCache(t)
	assert.NoError(t, rc.Ping(context.Background()))
}

func TestLockIsExclusiveAndExpires(t *testing.T) {
	ctx := context.Background()
	rc, mr := newCache(t)

	lock, err := rc.AcquireLock(ctx, "sweeper", time.Minute)
	require.NoError(t, err)

	_, err = rc.AcquireLock(ctx, "sweeper", time.Minute)
	assert.ErrorIs(t, err, cache.ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), cache.ErrLockNotHeld)

	again, err := rc.AcquireLock(ctx, "sweeper", time.Minute)
	require.NoError(t, err)

	// expired locks can be taken over; the old holder cannot release the new one
	mr.FastForward(2 * time.Minute)
	other, err := rc.AcquireLock(ctx, "sweeper", time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, again.Release(ctx), cache.ErrLockNotHeld)
	assert.NoError(t, other.Release(ctx))
}

func TestStreamPublishReadAck(t *testing.T) {
	ctx := context.Background()
	rc, _ := newCache(t)

	require.NoError(t, rc.EnsureGroup(ctx, "intents", "workers"))
	require.NoError(t, rc.EnsureGroup(ctx, "intents", "workers")) // idempotent

	id, err := rc.Publish(ctx, "intents", 0, []byte(`{"type":"suggestion.sent"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := rc.ReadGroup(ctx, "intents", "workers", "w1", 10, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.JSONEq(t, `{"type":"suggestion.sent"}`, string(msgs[0].Data))

	// delivered but not acked → pending
	pending, err := rc.ReadPending(ctx, "intents", "workers", "w1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, rc.Ack(ctx, "intents", "workers", id))
	pending, err = rc.ReadPending(ctx, "intents", "workers", "w1", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	msgs, err = rc.ReadGroup(ctx, "intents", "workers", "w1", 10, -1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
