package registration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/greendale-game/airdrop-bot/internal/convo"
	"github.com/greendale-game/airdrop-bot/internal/domain"
	"github.com/greendale-game/airdrop-bot/internal/i18n"
	"github.com/greendale-game/airdrop-bot/internal/repository"
	"github.com/greendale-game/airdrop-bot/pkg/config"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockRepo) MarkTelegramVerified(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) SaveTwitterHandle(ctx context.Context, id int64, handle string) error {
	return m.Called(ctx, id, handle).Error(0)
}

func (m *mockRepo) AdvanceToWallet(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) SaveWallet(ctx context.Context, id int64, wallet string) error {
	return m.Called(ctx, id, wallet).Error(0)
}

func (m *mockRepo) IncrementReferralCount(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) CountByStep(ctx context.Context) (map[int]int, error) {
	args := m.Called(ctx)
	if c := args.Get(0); c != nil {
		return c.(map[int]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) ListPendingTwitter(ctx context.Context, since time.Time) ([]*domain.User, error) {
	args := m.Called(ctx, since)
	if u := args.Get(0); u != nil {
		return u.([]*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ repository.UserRepository = (*mockRepo)(nil)

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) IsMemberOfAll(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// passLocker runs the callback inline; lock semantics are covered by the
// locker package's own tests.
type passLocker struct{}

func (passLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

type stubPollers struct {
	started []int64
}

func (s *stubPollers) EnsureStarted(userID int64) {
	s.started = append(s.started, userID)
}

func newTestFlow(t *testing.T, repo repository.UserRepository, checker MembershipChecker) (*Flow, *stubPollers) {
	t.Helper()

	mgr, err := i18n.Load("en")
	require.NoError(t, err)

	flow := NewFlow(
		repo,
		checker,
		passLocker{},
		mgr.Translator("en"),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		config.ReferralConfig{BaseURL: "https://t.me/greendale1_bot"},
		"https://x.com/greendalegame",
	)

	pollers := &stubPollers{}
	flow.SetPollerStarter(pollers)
	return flow, pollers
}

func event(userID int64, text string) convo.Event {
	return convo.Event{UserID: userID, Username: "alice", FirstName: "Alice", Text: text}
}

func TestValidWalletAddress(t *testing.T) {
	tests := []struct {
		name   string
		wallet string
		want   bool
	}{
		{"too short", "abc", false},
		{"thirty one chars", "1234567890123456789012345678901", false},
		{"thirty two chars", "12345678901234567890123456789012", true},
		{"typical solana key", "7Vtx8hK3PkQm2WrZnYcLdFgT5B9XsJaE4RqNwUe1MbCo", true},
		{"forty five chars", "123456789012345678901234567890123456789012345", false},
		{"padded with spaces", "   12345678901234567890123456789012   ", true},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidWalletAddress(tt.wallet))
		})
	}
}

func TestFlowStartRegistersNewUser(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(nil, repository.ErrUserNotFound)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		// Create writes created_at verbatim; a zero value here would
		// reach the database and break the pending-reminder cutoff.
		return u.TelegramID == 7 &&
			u.RegistrationStep == domain.StepTelegramCheck &&
			u.ReferralBy == nil &&
			!u.CreatedAt.IsZero()
	})).Return(nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	reply, err := flow.Start(context.Background(), event(7, "/start"))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Welcome, Alice!")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, ActionStartRegistration, reply.Actions[0][0].Data)
	repo.AssertExpectations(t)
}

func TestFlowStartCreditsReferrer(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(nil, repository.ErrUserNotFound)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.ReferralBy != nil && *u.ReferralBy == 42
	})).Return(nil)
	repo.On("IncrementReferralCount", mock.Anything, int64(42)).Return(nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	ev := event(7, "/start")
	ev.Payload = "42"
	_, err := flow.Start(context.Background(), ev)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestFlowStartIgnoresSelfReferral(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(nil, repository.ErrUserNotFound)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.ReferralBy == nil
	})).Return(nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	ev := event(7, "/start")
	ev.Payload = "7"
	_, err := flow.Start(context.Background(), ev)
	require.NoError(t, err)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "IncrementReferralCount", mock.Anything, mock.Anything)
}

func TestFlowStartCompletedUserGetsStatus(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepCompleted,
		Wallet:           "7Vtx8hK3PkQm2WrZnYcLdFgT5B9XsJaE4RqNwUe1MbCo",
	}, nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	reply, err := flow.Start(context.Background(), event(7, "/start"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "already registered")
	assert.Contains(t, reply.Text, "https://t.me/greendale1_bot?start=7")
	assert.Contains(t, reply.Text, "7Vtx8hK3Pk...")
}

func TestFlowStartRegistrationLaunchesPoller(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTelegramCheck,
	}, nil)

	flow, pollers := newTestFlow(t, repo, &mockChecker{})

	reply, err := flow.StartRegistration(context.Background(), event(7, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Join Greendale's telegram group")
	assert.Contains(t, reply.Text, "every 30 seconds")
	assert.Equal(t, []int64{7}, pollers.started)
}

func TestFlowCheckMembershipSuccess(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTelegramCheck,
	}, nil)
	repo.On("MarkTelegramVerified", mock.Anything, int64(7)).Return(nil)

	checker := &mockChecker{}
	checker.On("IsMemberOfAll", mock.Anything, int64(7)).Return(true, nil)

	flow, pollers := newTestFlow(t, repo, checker)

	reply, err := flow.CheckMembership(context.Background(), event(7, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "member of our Telegram community")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, ActionProceedTwitter, reply.Actions[0][0].Data)
	assert.Empty(t, pollers.started)
	repo.AssertExpectations(t)
}

func TestFlowCheckMembershipNotMember(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTelegramCheck,
	}, nil)

	checker := &mockChecker{}
	checker.On("IsMemberOfAll", mock.Anything, int64(7)).Return(false, nil)

	flow, pollers := newTestFlow(t, repo, checker)

	reply, err := flow.CheckMembership(context.Background(), event(7, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Not in group!")
	assert.Equal(t, []int64{7}, pollers.started)
	repo.AssertNotCalled(t, "MarkTelegramVerified", mock.Anything, mock.Anything)
}

// A checker error must never grant membership.
func TestFlowCheckMembershipFailsClosed(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTelegramCheck,
	}, nil)

	checker := &mockChecker{}
	checker.On("IsMemberOfAll", mock.Anything, int64(7)).
		Return(false, errors.New("telegram unreachable"))

	flow, _ := newTestFlow(t, repo, checker)

	reply, err := flow.CheckMembership(context.Background(), event(7, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Not in group!")
	repo.AssertNotCalled(t, "MarkTelegramVerified", mock.Anything, mock.Anything)
}

func TestFlowCheckMembershipAlreadyVerified(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTwitterSubmit,
		TwitterStatus:    domain.TwitterStatusPending,
	}, nil)

	checker := &mockChecker{}
	flow, _ := newTestFlow(t, repo, checker)

	reply, err := flow.CheckMembership(context.Background(), event(7, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "https://x.com/greendalegame")
	checker.AssertNotCalled(t, "IsMemberOfAll", mock.Anything, mock.Anything)
}

func TestFlowHandleTextAcceptsTwitterHandle(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTwitterSubmit,
		TwitterStatus:    domain.TwitterStatusPending,
	}, nil)
	repo.On("SaveTwitterHandle", mock.Anything, int64(7), "alice_gm").Return(nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	reply, err := flow.HandleText(context.Background(), event(7, "@alice_gm"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Submitted username: @alice_gm")
	repo.AssertExpectations(t)
}

func TestFlowHandleTextWhilePending(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTwitterSubmit,
		TwitterID:        "alice_gm",
		TwitterStatus:    domain.TwitterStatusPending,
	}, nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	reply, err := flow.HandleText(context.Background(), event(7, "anything"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "still pending")
	repo.AssertNotCalled(t, "SaveTwitterHandle", mock.Anything, mock.Anything, mock.Anything)
}

func TestFlowHandleTextRejectsBadWallet(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepWalletSubmit,
	}, nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	reply, err := flow.HandleText(context.Background(), event(7, "short"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Invalid Solana wallet address")
	repo.AssertNotCalled(t, "SaveWallet", mock.Anything, mock.Anything, mock.Anything)
}

func TestFlowHandleTextCompletesRegistration(t *testing.T) {
	const wallet = "7Vtx8hK3PkQm2WrZnYcLdFgT5B9XsJaE4RqNwUe1MbCo"

	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepWalletSubmit,
	}, nil)
	repo.On("SaveWallet", mock.Anything, int64(7), wallet).Return(nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	reply, err := flow.HandleText(context.Background(), event(7, wallet))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Registration Complete!")
	assert.Contains(t, reply.Text, "https://t.me/greendale1_bot?start=7")
	repo.AssertExpectations(t)
}

// An approval observed while the record is still at the twitter step is
// persisted before the wallet prompt continues.
func TestFlowSettlesApprovalOnProceed(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTwitterSubmit,
		TwitterID:        "alice_gm",
		TwitterStatus:    domain.TwitterStatusApproved,
	}, nil)
	repo.On("AdvanceToWallet", mock.Anything, int64(7)).Return(nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	reply, err := flow.ProceedTwitter(context.Background(), event(7, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "has been verified")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, ActionProceedWallet, reply.Actions[0][0].Data)
	repo.AssertExpectations(t)
}

func TestFlowProceedTwitterAfterRejection(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
		TelegramID:       7,
		RegistrationStep: domain.StepTwitterSubmit,
		TwitterID:        "alice_gm",
		TwitterStatus:    domain.TwitterStatusRejected,
	}, nil)

	flow, _ := newTestFlow(t, repo, &mockChecker{})

	reply, err := flow.ProceedTwitter(context.Background(), event(7, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "verification was rejected")
}

func TestFlowVerifyAndAdvance(t *testing.T) {
	t.Run("advances when member", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
			TelegramID:       7,
			RegistrationStep: domain.StepTelegramCheck,
		}, nil)
		repo.On("MarkTelegramVerified", mock.Anything, int64(7)).Return(nil)

		checker := &mockChecker{}
		checker.On("IsMemberOfAll", mock.Anything, int64(7)).Return(true, nil)

		flow, _ := newTestFlow(t, repo, checker)

		done, reply, err := flow.VerifyAndAdvance(context.Background(), 7)
		require.NoError(t, err)
		assert.True(t, done)
		require.NotNil(t, reply)
		assert.Contains(t, reply.Text, "member of our Telegram community")
	})

	t.Run("keeps polling when not a member", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
			TelegramID:       7,
			RegistrationStep: domain.StepTelegramCheck,
		}, nil)

		checker := &mockChecker{}
		checker.On("IsMemberOfAll", mock.Anything, int64(7)).Return(false, nil)

		flow, _ := newTestFlow(t, repo, checker)

		done, reply, err := flow.VerifyAndAdvance(context.Background(), 7)
		require.NoError(t, err)
		assert.False(t, done)
		assert.Nil(t, reply)
	})

	t.Run("stops when user already advanced", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
			TelegramID:       7,
			RegistrationStep: domain.StepWalletSubmit,
		}, nil)

		checker := &mockChecker{}
		flow, _ := newTestFlow(t, repo, checker)

		done, reply, err := flow.VerifyAndAdvance(context.Background(), 7)
		require.NoError(t, err)
		assert.True(t, done)
		assert.Nil(t, reply)
		checker.AssertNotCalled(t, "IsMemberOfAll", mock.Anything, mock.Anything)
	})

	t.Run("check error is inconclusive", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
			TelegramID:       7,
			RegistrationStep: domain.StepTelegramCheck,
		}, nil)

		checker := &mockChecker{}
		checker.On("IsMemberOfAll", mock.Anything, int64(7)).
			Return(false, errors.New("timeout"))

		flow, _ := newTestFlow(t, repo, checker)

		done, _, err := flow.VerifyAndAdvance(context.Background(), 7)
		require.Error(t, err)
		assert.False(t, done)
		repo.AssertNotCalled(t, "MarkTelegramVerified", mock.Anything, mock.Anything)
	})
}

func TestFlowInfo(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindByID", mock.Anything, int64(7)).Return(nil, repository.ErrUserNotFound)

		flow, _ := newTestFlow(t, repo, &mockChecker{})

		reply, err := flow.Info(context.Background(), event(7, "/info"))
		require.NoError(t, err)
		assert.Contains(t, reply.Text, "User does not exist")
	})

	t.Run("completed user", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.User{
			TelegramID:       7,
			RegistrationStep: domain.StepCompleted,
			Wallet:           "7Vtx8hK3PkQm2WrZnYcLdFgT5B9XsJaE4RqNwUe1MbCo",
		}, nil)

		flow, _ := newTestFlow(t, repo, &mockChecker{})

		reply, err := flow.Info(context.Background(), event(7, "/info"))
		require.NoError(t, err)
		assert.Contains(t, reply.Text, "7Vtx8hK3Pk...")
	})
}
