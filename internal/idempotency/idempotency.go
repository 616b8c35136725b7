// Package idempotency deduplicates Telegram updates. Telegram redelivers
// updates after timeouts and restarts; each update is processed at most
// once within the record TTL.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/greendale-game/airdrop-bot/pkg/redis"
)

// GenerateKey builds a deterministic key from all provided parts.
func GenerateKey(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// UpdateKey identifies one Telegram update.
func UpdateKey(userID int64, updateID int) string {
	return GenerateKey("update", userID, updateID)
}

// Store records which keys have been seen.
type Store interface {
	// MarkOnce records key and reports whether this call was the first to
	// do so within the TTL window.
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisStore implements Store with SET NX records.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		log:    log.With(slog.String("component", "idempotency")),
	}
}

func (s *RedisStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	first, err := s.client.SetNX(ctx, recordKey(key), 1, ttl).Result()
	if err != nil {
		s.log.ErrorContext(ctx, "idempotency record failed",
			slog.String("key", key),
			slog.Any("error", err))
		return false, err
	}

	return first, nil
}

func recordKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
