package user

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greendale-game/airdrop-bot/internal/domain"
	"github.com/greendale-game/airdrop-bot/internal/repository"
	"github.com/greendale-game/airdrop-bot/internal/usercache"
	"github.com/greendale-game/airdrop-bot/pkg/config"
	"github.com/greendale-game/airdrop-bot/pkg/redis"
)

// countingRepo serves one record and counts reads.
type countingRepo struct {
	user  *domain.User
	reads int
}

func (r *countingRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	r.reads++
	if r.user == nil || r.user.TelegramID != id {
		return nil, repository.ErrUserNotFound
	}
	u := *r.user
	return &u, nil
}

func (r *countingRepo) Create(_ context.Context, u *domain.User) error {
	r.user = u
	return nil
}

func (r *countingRepo) MarkTelegramVerified(context.Context, int64) error { return nil }

func (r *countingRepo) SaveTwitterHandle(_ context.Context, _ int64, handle string) error {
	r.user.TwitterID = handle
	return nil
}

func (r *countingRepo) AdvanceToWallet(context.Context, int64) error { return nil }

func (r *countingRepo) SaveWallet(_ context.Context, _ int64, wallet string) error {
	r.user.Wallet = wallet
	return nil
}

func (r *countingRepo) IncrementReferralCount(context.Context, int64) error { return nil }
func (r *countingRepo) CountByStep(context.Context) (map[int]int, error)    { return nil, nil }
func (r *countingRepo) ListPendingTwitter(context.Context, time.Time) ([]*domain.User, error) {
	return nil, nil
}

func newTestService(t *testing.T, repo repository.UserRepository) *Service {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.New(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cache := usercache.NewCache(client, time.Minute)
	return NewService(repo, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestServiceCachesReads(t *testing.T) {
	repo := &countingRepo{user: &domain.User{TelegramID: 7, RegistrationStep: domain.StepTwitterSubmit}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.FindByID(ctx, 7)
	require.NoError(t, err)
	second, err := svc.FindByID(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, first.TelegramID, second.TelegramID)
	assert.Equal(t, 1, repo.reads)
}

func TestServiceWriteInvalidatesCache(t *testing.T) {
	repo := &countingRepo{user: &domain.User{TelegramID: 7, RegistrationStep: domain.StepTwitterSubmit}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.FindByID(ctx, 7)
	require.NoError(t, err)

	require.NoError(t, svc.SaveTwitterHandle(ctx, 7, "alice_gm"))

	got, err := svc.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "alice_gm", got.TwitterID)
	assert.Equal(t, 2, repo.reads)
}

func TestServicePendingModerationReadsThrough(t *testing.T) {
	repo := &countingRepo{user: &domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTwitterSubmit,
		TwitterID:        "alice_gm",
		TwitterStatus:    domain.TwitterStatusPending,
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.FindByID(ctx, 7)
	require.NoError(t, err)

	// Moderation approves the handle directly in the store; no write goes
	// through the service, so no invalidation happens.
	repo.user.TwitterStatus = domain.TwitterStatusApproved

	got, err := svc.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.TwitterStatusApproved, got.TwitterStatus)
	assert.Equal(t, 2, repo.reads)
}

func TestServiceNotFoundPassesThrough(t *testing.T) {
	svc := newTestService(t, &countingRepo{})

	_, err := svc.FindByID(context.Background(), 404)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestServiceNilCacheIsNoop(t *testing.T) {
	repo := &countingRepo{user: &domain.User{TelegramID: 7}}
	svc := NewService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := svc.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.TelegramID)

	got2, err := svc.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got2.TelegramID)
	assert.Equal(t, 2, repo.reads)
}
