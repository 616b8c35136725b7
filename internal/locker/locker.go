// Package locker provides a redis-backed mutual exclusion primitive used to
// serialize work per user identity.
package locker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/greendale-game/airdrop-bot/pkg/redis"
)

const (
	defaultTTL       = 30 * time.Second
	acquireRetry     = 100 * time.Millisecond
	defaultWaitLimit = 10 * time.Second
)

// unlockScript deletes the key only when it still holds our token, so an
// expired lock reacquired by someone else is never released by us.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker acquires per-key locks with SET NX and a TTL. Contenders wait and
// retry instead of failing, so concurrent updates for one user are
// serialized rather than dropped.
type Locker struct {
	client    *redis.Client
	log       *slog.Logger
	ttl       time.Duration
	waitLimit time.Duration
}

// New constructs a Locker with the default TTL and wait limit.
func New(client *redis.Client, log *slog.Logger) *Locker {
	return &Locker{
		client:    client,
		log:       log.With(slog.String("component", "locker")),
		ttl:       defaultTTL,
		waitLimit: defaultWaitLimit,
	}
}

// WithLock runs fn while holding the lock for key. It blocks, polling every
// 100ms, until the lock is acquired, the wait limit passes, or ctx is done.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer l.release(key, token)

	return fn(ctx)
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.waitLimit)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("acquire lock %q: wait limit exceeded", key)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire lock %q: %w", key, ctx.Err())
		case <-time.After(acquireRetry):
		}
	}
}

func (l *Locker) release(key, token string) {
	// Release must not inherit a canceled request context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.client.Eval(ctx, unlockScript, []string{key}, token).Err(); err != nil &&
		!errors.Is(err, goredis.Nil) {
		l.log.Warn("lock release failed",
			slog.String("key", key),
			slog.Any("error", err))
	}
}
