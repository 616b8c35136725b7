// Package poller runs the automatic membership verification loop: one
// background goroutine per user at the membership stage, re-checking on a
// fixed interval until success, timeout, or shutdown.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/greendale-game/airdrop-bot/internal/convo"
	"github.com/greendale-game/airdrop-bot/pkg/config"
)

// Attempter performs one poll attempt. VerifyAndAdvance reports done=true
// when polling should stop, optionally with a notification to deliver.
type Attempter interface {
	VerifyAndAdvance(ctx context.Context, userID int64) (bool, *convo.Reply, error)
	TimeoutReply() *convo.Reply
}

// Notifier delivers a reply to the user outside a request cycle.
type Notifier interface {
	Notify(ctx context.Context, userID int64, reply *convo.Reply) error
}

// Supervisor owns the per-user poll goroutines. At most one poller runs per
// user; EnsureStarted on a running user is a no-op.
type Supervisor struct {
	attempter   Attempter
	notifier    Notifier
	log         *slog.Logger
	interval    time.Duration
	maxAttempts int

	mu     sync.Mutex
	active map[int64]struct{}

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Supervisor using the verification settings.
func New(attempter Attempter, notifier Notifier, cfg config.VerificationConfig, log *slog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Supervisor{
		attempter:   attempter,
		notifier:    notifier,
		log:         log.With(slog.String("component", "poller")),
		interval:    cfg.PollInterval,
		maxAttempts: cfg.MaxAttempts,
		active:      make(map[int64]struct{}),
		rootCtx:     ctx,
		cancel:      cancel,
	}
}

// EnsureStarted launches the poll loop for userID unless one is already
// running or the supervisor is shutting down.
func (s *Supervisor) EnsureStarted(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rootCtx.Err() != nil {
		return
	}
	if _, running := s.active[userID]; running {
		return
	}

	s.active[userID] = struct{}{}
	s.wg.Add(1)

	go s.run(userID)

	s.log.Info("membership poller started", slog.Int64("user_id", userID))
}

// Active returns the number of running pollers.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown stops all pollers and waits for them to exit, up to ctx's
// deadline.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) run(userID int64) {
	defer func() {
		s.mu.Lock()
		delete(s.active, userID)
		s.mu.Unlock()
		s.wg.Done()
	}()

	log := s.log.With(slog.Int64("user_id", userID))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		select {
		case <-s.rootCtx.Done():
			log.Info("membership poller stopped by shutdown")
			return
		case <-ticker.C:
		}

		done, reply, err := s.attempter.VerifyAndAdvance(s.rootCtx, userID)
		if err != nil {
			// Inconclusive attempt, the next tick retries.
			log.Warn("poll attempt failed",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			continue
		}

		if done {
			if reply != nil {
				s.notify(userID, reply)
				log.Info("membership poller succeeded", slog.Int("attempt", attempt))
			} else {
				log.Info("membership poller stopped, user advanced elsewhere")
			}
			return
		}
	}

	log.Info("membership poller timed out", slog.Int("attempts", s.maxAttempts))
	s.notify(userID, s.attempter.TimeoutReply())
}

func (s *Supervisor) notify(userID int64, reply *convo.Reply) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.notifier.Notify(ctx, userID, reply); err != nil {
		s.log.Warn("poll notification failed",
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}
}
