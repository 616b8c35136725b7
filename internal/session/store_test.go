package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greendale-game/airdrop-bot/pkg/config"
	"github.com/greendale-game/airdrop-bot/pkg/redis"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.New(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, ttl), mr
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 7, Context{CurrentTaskID: 3, AwaitingSubmission: true}))

	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.CurrentTaskID)
	assert.True(t, got.AwaitingSubmission)
}

func TestStoreGetMissingIsZero(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	got, err := store.Get(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, Context{}, got)
}

func TestStoreUpdate(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 7, Context{CurrentTaskID: 3}))
	require.NoError(t, store.Update(ctx, 7, func(sc *Context) {
		sc.AwaitingSubmission = true
	}))

	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Context{CurrentTaskID: 3, AwaitingSubmission: true}, got)
}

func TestStoreClear(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 7, Context{CurrentTaskID: 3}))
	require.NoError(t, store.Clear(ctx, 7))
	assert.False(t, mr.Exists("user:session:7"))
}

func TestStoreExpires(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 7, Context{CurrentTaskID: 3}))
	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Context{}, got)
}
