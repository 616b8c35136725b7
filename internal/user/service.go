// Package user wraps the user record store with a cache-aside profile
// cache. Reads are served from Redis when fresh; every write invalidates
// the cached profile before hitting the store, so a stale projection is
// bounded by the cache TTL only for records nobody writes.
package user

import (
	"context"
	"log/slog"
	"time"

	"github.com/greendale-game/airdrop-bot/internal/domain"
	"github.com/greendale-game/airdrop-bot/internal/repository"
	"github.com/greendale-game/airdrop-bot/internal/usercache"
)

// Service implements repository.UserRepository with caching layered over a
// backing store. Cache failures degrade to store reads, never to errors.
type Service struct {
	repo  repository.UserRepository
	cache *usercache.Cache
	log   *slog.Logger
}

var _ repository.UserRepository = (*Service)(nil)

// NewService constructs a Service. A nil cache disables caching.
func NewService(repo repository.UserRepository, cache *usercache.Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log.With(slog.String("component", "user_service")),
	}
}

func (s *Service) FindByID(ctx context.Context, telegramID int64) (*domain.User, error) {
	cached, err := s.cache.Get(ctx, telegramID)
	if err != nil {
		s.log.WarnContext(ctx, "user cache read failed",
			slog.Int64("user_id", telegramID),
			slog.Any("error", err))
	}
	if cached != nil && !awaitingModeration(cached) {
		return cached, nil
	}

	user, err := s.repo.FindByID(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, user); err != nil {
		s.log.WarnContext(ctx, "user cache write failed",
			slog.Int64("user_id", telegramID),
			slog.Any("error", err))
	}

	return user, nil
}

func (s *Service) Create(ctx context.Context, user *domain.User) error {
	s.invalidate(ctx, user.TelegramID)
	return s.repo.Create(ctx, user)
}

func (s *Service) MarkTelegramVerified(ctx context.Context, telegramID int64) error {
	s.invalidate(ctx, telegramID)
	return s.repo.MarkTelegramVerified(ctx, telegramID)
}

func (s *Service) SaveTwitterHandle(ctx context.Context, telegramID int64, handle string) error {
	s.invalidate(ctx, telegramID)
	return s.repo.SaveTwitterHandle(ctx, telegramID, handle)
}

func (s *Service) AdvanceToWallet(ctx context.Context, telegramID int64) error {
	s.invalidate(ctx, telegramID)
	return s.repo.AdvanceToWallet(ctx, telegramID)
}

func (s *Service) SaveWallet(ctx context.Context, telegramID int64, wallet string) error {
	s.invalidate(ctx, telegramID)
	return s.repo.SaveWallet(ctx, telegramID, wallet)
}

func (s *Service) IncrementReferralCount(ctx context.Context, telegramID int64) error {
	s.invalidate(ctx, telegramID)
	return s.repo.IncrementReferralCount(ctx, telegramID)
}

func (s *Service) CountByStep(ctx context.Context) (map[int]int, error) {
	return s.repo.CountByStep(ctx)
}

func (s *Service) ListPendingTwitter(ctx context.Context, pendingSince time.Time) ([]*domain.User, error) {
	return s.repo.ListPendingTwitter(ctx, pendingSince)
}

// awaitingModeration reports whether the profile sits at handle moderation.
// Moderation decisions land in the database out-of-band, so these profiles
// are always read through to the store.
func awaitingModeration(u *domain.User) bool {
	return u.RegistrationStep == domain.StepTwitterSubmit &&
		u.TwitterStatus == domain.TwitterStatusPending &&
		u.TwitterID != ""
}

func (s *Service) invalidate(ctx context.Context, telegramID int64) {
	if err := s.cache.Invalidate(ctx, telegramID); err != nil {
		s.log.WarnContext(ctx, "user cache invalidation failed",
			slog.Int64("user_id", telegramID),
			slog.Any("error", err))
	}
}
