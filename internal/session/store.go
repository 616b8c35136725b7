// Package session stores short-lived conversation context in Redis: which
// task a user is looking at and whether a proof submission is expected.
// Registration progress never lives here; it is projected from the user
// record.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/greendale-game/airdrop-bot/pkg/redis"
)

const keyPattern = "user:session:%d"

// Context is the transient task-browsing state of one user.
type Context struct {
	CurrentTaskID      int64 `json:"current_task_id,omitempty"`
	AwaitingSubmission bool  `json:"awaiting_submission,omitempty"`
}

// Store persists session contexts with a TTL. A missing key reads as the
// zero Context.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store. TTL must be positive.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf(keyPattern, userID)
}

// Get returns the session context for userID, or a zero Context when none
// is stored.
func (s *Store) Get(ctx context.Context, userID int64) (Context, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Context{}, nil
	}
	if err != nil {
		return Context{}, fmt.Errorf("get session for user %d: %w", userID, err)
	}

	var sc Context
	if err := json.Unmarshal(data, &sc); err != nil {
		return Context{}, fmt.Errorf("decode session for user %d: %w", userID, err)
	}

	return sc, nil
}

// Set stores the session context, refreshing the TTL.
func (s *Store) Set(ctx context.Context, userID int64, sc Context) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode session for user %d: %w", userID, err)
	}

	if err := s.client.Set(ctx, sessionKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session for user %d: %w", userID, err)
	}

	return nil
}

// Update reads, mutates and writes the session context in one call.
func (s *Store) Update(ctx context.Context, userID int64, mutate func(*Context)) error {
	sc, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	mutate(&sc)
	return s.Set(ctx, userID, sc)
}

// Clear removes the session context.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear session for user %d: %w", userID, err)
	}

	return nil
}
