package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/greendale-game/airdrop-bot/internal/convo"
	"github.com/greendale-game/airdrop-bot/internal/domain"
	apperrors "github.com/greendale-game/airdrop-bot/internal/errors"
	"github.com/greendale-game/airdrop-bot/internal/i18n"
	"github.com/greendale-game/airdrop-bot/internal/repository"
	"github.com/greendale-game/airdrop-bot/pkg/config"
)

// Callback data the flow attaches to its buttons. The bot router maps
// presses back to flow methods by these values.
const (
	ActionStartRegistration = "start_registration"
	ActionCheckTelegram     = "check_telegram"
	ActionProceedTwitter    = "proceed_twitter"
	ActionProceedWallet     = "proceed_wallet"
	ActionViewTasks         = "view_tasks"
)

// MembershipChecker verifies membership in all required Telegram groups.
type MembershipChecker interface {
	IsMemberOfAll(ctx context.Context, userID int64) (bool, error)
}

// Locker serializes work per key. All flow entry points that read, decide
// and write run under the user's lock so concurrent updates and the
// background poller never interleave.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// PollerStarter launches the background membership poller for a user.
// Starting an already running poller is a no-op.
type PollerStarter interface {
	EnsureStarted(userID int64)
}

// Flow drives the registration conversation. Every decision is made from
// the persisted user record; the flow itself is stateless.
type Flow struct {
	repo        repository.UserRepository
	checker     MembershipChecker
	locker      Locker
	pollers     PollerStarter
	tr          i18n.Translator
	log         *slog.Logger
	referral    config.ReferralConfig
	twitterLink string
}

// NewFlow wires a Flow. The poller starter may be set later via SetPollerStarter
// because the poller itself depends on the flow.
func NewFlow(
	repo repository.UserRepository,
	checker MembershipChecker,
	locker Locker,
	tr i18n.Translator,
	log *slog.Logger,
	referral config.ReferralConfig,
	twitterLink string,
) *Flow {
	return &Flow{
		repo:        repo,
		checker:     checker,
		locker:      locker,
		tr:          tr,
		log:         log.With(slog.String("component", "registration_flow")),
		referral:    referral,
		twitterLink: twitterLink,
	}
}

// SetPollerStarter installs the background poller. Must be called before the
// flow serves traffic.
func (f *Flow) SetPollerStarter(p PollerStarter) {
	f.pollers = p
}

// ValidWalletAddress reports whether s looks like a Solana wallet address.
// Base58-encoded Solana public keys are 32 to 44 characters long; the
// check is a length heuristic, not a full base58 decode.
func ValidWalletAddress(s string) bool {
	n := len(strings.TrimSpace(s))
	return n >= 32 && n <= 44
}

func lockKey(userID int64) string {
	return fmt.Sprintf("lock:user:%d", userID)
}

// Start handles the /start command. Unknown users are registered, with the
// deep-link payload recorded as the referrer when it names another user.
func (f *Flow) Start(ctx context.Context, ev convo.Event) (*convo.Reply, error) {
	var reply *convo.Reply

	err := f.locker.WithLock(ctx, lockKey(ev.UserID), func(ctx context.Context) error {
		user, created, err := f.ensureUser(ctx, ev)
		if err != nil {
			return err
		}

		if created || StateOf(user) == StateTelegramCheck {
			reply = convo.NewReply(f.tr.Tf("registration.welcome", displayName(ev))).
				WithRow(convo.NewAction(f.tr.T("buttons.start_registration"), ActionStartRegistration))
			return nil
		}

		reply = f.promptFor(ctx, user)
		return nil
	})

	return reply, err
}

// StartRegistration handles the start button at the first stage: it asks
// the user to join the groups and launches the automatic membership poller.
func (f *Flow) StartRegistration(ctx context.Context, ev convo.Event) (*convo.Reply, error) {
	var reply *convo.Reply

	err := f.locker.WithLock(ctx, lockKey(ev.UserID), func(ctx context.Context) error {
		user, _, err := f.ensureUser(ctx, ev)
		if err != nil {
			return err
		}

		if StateOf(user) != StateTelegramCheck {
			reply = f.promptFor(ctx, user)
			return nil
		}

		reply = f.joinPrompt(f.tr.T("registration.auto_check_notice"))
		f.startPoller(user.TelegramID)
		return nil
	})

	return reply, err
}

// CheckMembership handles the manual "check again" button. Check failures
// count as not-a-member; membership is never granted on error.
func (f *Flow) CheckMembership(ctx context.Context, ev convo.Event) (*convo.Reply, error) {
	var reply *convo.Reply

	err := f.locker.WithLock(ctx, lockKey(ev.UserID), func(ctx context.Context) error {
		user, _, err := f.ensureUser(ctx, ev)
		if err != nil {
			return err
		}

		if StateOf(user) != StateTelegramCheck {
			reply = f.promptFor(ctx, user)
			return nil
		}

		member, err := f.checker.IsMemberOfAll(ctx, user.TelegramID)
		if err != nil {
			f.log.WarnContext(ctx, "membership check failed, treating as not a member",
				slog.Int64("user_id", user.TelegramID),
				slog.Any("error", err))
			member = false
		}

		if !member {
			reply = f.notInGroupPrompt()
			f.startPoller(user.TelegramID)
			return nil
		}

		if err := f.repo.MarkTelegramVerified(ctx, user.TelegramID); err != nil {
			return apperrors.NewStoreError(err)
		}

		recordTransition(StateTelegramCheck, StateTwitterSubmit)
		f.log.InfoContext(ctx, "telegram membership verified",
			slog.Int64("user_id", user.TelegramID))

		reply = convo.NewReply(f.tr.T("registration.telegram_verified")).
			WithRow(convo.NewAction(f.tr.T("buttons.proceed_twitter"), ActionProceedTwitter))
		return nil
	})

	return reply, err
}

// ProceedTwitter handles the "proceed to X follow" button. When moderation
// has approved a pending handle, the approval is settled into the record
// here (step advances to wallet submission).
func (f *Flow) ProceedTwitter(ctx context.Context, ev convo.Event) (*convo.Reply, error) {
	var reply *convo.Reply

	err := f.locker.WithLock(ctx, lockKey(ev.UserID), func(ctx context.Context) error {
		user, err := f.findUser(ctx, ev.UserID)
		if err != nil {
			return err
		}

		switch StateOf(user) {
		case StateTelegramCheck:
			reply = f.joinPrompt("")
		case StateTwitterSubmit:
			if user.TwitterStatus == domain.TwitterStatusRejected {
				reply = convo.NewReply(f.tr.Tf("registration.twitter_rejected",
					f.tr.T("registration.twitter_reject_reason")))
				return nil
			}
			reply = convo.NewReply(f.tr.Tf("registration.twitter_follow", f.twitterLink))
		case StateTwitterPending:
			reply = convo.NewReply(f.tr.T("registration.twitter_still_pending")).
				WithRow(convo.NewAction(f.tr.T("buttons.proceed"), ActionProceedTwitter))
		case StateWalletSubmit:
			if err := f.settleApproval(ctx, user); err != nil {
				return err
			}
			reply = convo.NewReply(f.tr.T("registration.twitter_approved")).
				WithRow(convo.NewAction(f.tr.T("buttons.proceed_wallet"), ActionProceedWallet))
		case StateCompleted:
			reply = convo.NewReply(f.tr.T("registration.already_completed")).
				WithRow(convo.NewAction(f.tr.T("buttons.view_tasks"), ActionViewTasks))
		}

		return nil
	})

	return reply, err
}

// ProceedWallet handles the "proceed to submit wallet" button.
func (f *Flow) ProceedWallet(ctx context.Context, ev convo.Event) (*convo.Reply, error) {
	var reply *convo.Reply

	err := f.locker.WithLock(ctx, lockKey(ev.UserID), func(ctx context.Context) error {
		user, err := f.findUser(ctx, ev.UserID)
		if err != nil {
			return err
		}

		switch StateOf(user) {
		case StateWalletSubmit:
			if err := f.settleApproval(ctx, user); err != nil {
				return err
			}
			reply = convo.NewReply(f.tr.T("registration.wallet_prompt"))
		case StateCompleted:
			reply = convo.NewReply(f.tr.T("registration.already_completed")).
				WithRow(convo.NewAction(f.tr.T("buttons.view_tasks"), ActionViewTasks))
		default:
			reply = f.promptFor(ctx, user)
		}

		return nil
	})

	return reply, err
}

// HandleText routes a plain message by the user's current state: a Twitter
// handle while it is expected, a wallet address while it is expected, and a
// stage prompt otherwise.
func (f *Flow) HandleText(ctx context.Context, ev convo.Event) (*convo.Reply, error) {
	var reply *convo.Reply

	err := f.locker.WithLock(ctx, lockKey(ev.UserID), func(ctx context.Context) error {
		user, err := f.repo.FindByID(ctx, ev.UserID)
		if errors.Is(err, repository.ErrUserNotFound) {
			reply = convo.NewReply(f.tr.T("registration.info_not_registered"))
			return nil
		}
		if err != nil {
			return apperrors.NewStoreError(err)
		}

		switch StateOf(user) {
		case StateTelegramCheck:
			reply = f.joinPrompt("")
		case StateTwitterSubmit:
			return f.acceptTwitterHandle(ctx, user, ev.Text, &reply)
		case StateTwitterPending:
			reply = convo.NewReply(f.tr.T("registration.twitter_still_pending"))
		case StateWalletSubmit:
			return f.acceptWallet(ctx, user, ev.Text, &reply)
		case StateCompleted:
			reply = convo.NewReply(f.tr.T("registration.already_completed")).
				WithRow(convo.NewAction(f.tr.T("buttons.view_tasks"), ActionViewTasks))
		}

		return nil
	})

	return reply, err
}

// Info handles the /info command.
func (f *Flow) Info(ctx context.Context, ev convo.Event) (*convo.Reply, error) {
	user, err := f.repo.FindByID(ctx, ev.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return convo.NewReply(f.tr.T("registration.info_not_registered")), nil
	}
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}

	if StateOf(user) == StateCompleted {
		summary := f.tr.Tf("registration.status_summary", user.MaskedWallet())
		return convo.NewReply(f.tr.Tf("registration.already_registered",
			summary, f.referral.Link(user.TelegramID))).
			WithRow(convo.NewAction(f.tr.T("buttons.view_tasks"), ActionViewTasks)), nil
	}

	return convo.NewReply(f.statusText(user)), nil
}

// VerifyAndAdvance runs one background poll attempt. It reports done=true
// when polling should stop: the user advanced (with a notification reply)
// or is no longer at the membership stage. On a check error the attempt is
// inconclusive and polling continues.
func (f *Flow) VerifyAndAdvance(ctx context.Context, userID int64) (bool, *convo.Reply, error) {
	var (
		done  bool
		reply *convo.Reply
	)

	err := f.locker.WithLock(ctx, lockKey(userID), func(ctx context.Context) error {
		user, err := f.repo.FindByID(ctx, userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			done = true
			return nil
		}
		if err != nil {
			return apperrors.NewStoreError(err)
		}

		if StateOf(user) != StateTelegramCheck {
			done = true
			return nil
		}

		member, err := f.checker.IsMemberOfAll(ctx, userID)
		if err != nil {
			return apperrors.NewExternalError("telegram", err)
		}
		if !member {
			return nil
		}

		if err := f.repo.MarkTelegramVerified(ctx, userID); err != nil {
			return apperrors.NewStoreError(err)
		}

		recordTransition(StateTelegramCheck, StateTwitterSubmit)
		f.log.InfoContext(ctx, "telegram membership verified by poller",
			slog.Int64("user_id", userID))

		done = true
		reply = convo.NewReply(f.tr.T("registration.poll_success")).
			WithRow(convo.NewAction(f.tr.T("buttons.proceed_twitter"), ActionProceedTwitter))
		return nil
	})

	return done, reply, err
}

// TimeoutReply is the notification sent when the poller gives up.
func (f *Flow) TimeoutReply() *convo.Reply {
	return convo.NewReply(f.tr.T("registration.poll_timeout")).
		WithRow(convo.NewAction(f.tr.T("buttons.check_again"), ActionCheckTelegram))
}

func (f *Flow) acceptTwitterHandle(ctx context.Context, user *domain.User, text string, reply **convo.Reply) error {
	handle := strings.TrimPrefix(strings.TrimSpace(text), "@")
	if handle == "" {
		*reply = convo.NewReply(f.tr.T("registration.twitter_ask_handle"))
		return nil
	}

	if err := f.repo.SaveTwitterHandle(ctx, user.TelegramID, handle); err != nil {
		return apperrors.NewStoreError(err)
	}

	recordTransition(StateTwitterSubmit, StateTwitterPending)
	f.log.InfoContext(ctx, "twitter handle submitted",
		slog.Int64("user_id", user.TelegramID))

	*reply = convo.NewReply(f.tr.Tf("registration.twitter_pending", handle))
	return nil
}

func (f *Flow) acceptWallet(ctx context.Context, user *domain.User, text string, reply **convo.Reply) error {
	if err := f.settleApproval(ctx, user); err != nil {
		return err
	}

	wallet := strings.TrimSpace(text)
	if !ValidWalletAddress(wallet) {
		*reply = convo.NewReply(f.tr.T("registration.wallet_invalid"))
		return nil
	}

	if err := f.repo.SaveWallet(ctx, user.TelegramID, wallet); err != nil {
		return apperrors.NewStoreError(err)
	}

	recordTransition(StateWalletSubmit, StateCompleted)
	f.log.InfoContext(ctx, "registration completed",
		slog.Int64("user_id", user.TelegramID))

	*reply = convo.NewReply(f.tr.Tf("registration.final_success",
		f.referral.Link(user.TelegramID))).
		WithRow(convo.NewAction(f.tr.T("buttons.view_tasks"), ActionViewTasks))
	return nil
}

// settleApproval persists a moderation approval the projection has already
// observed: a record still at the twitter step whose status is approved
// moves to the wallet step.
func (f *Flow) settleApproval(ctx context.Context, user *domain.User) error {
	if user.RegistrationStep != domain.StepTwitterSubmit ||
		user.TwitterStatus != domain.TwitterStatusApproved {
		return nil
	}

	if err := f.repo.AdvanceToWallet(ctx, user.TelegramID); err != nil {
		return apperrors.NewStoreError(err)
	}

	user.RegistrationStep = domain.StepWalletSubmit
	recordTransition(StateTwitterPending, StateWalletSubmit)
	return nil
}

// ensureUser loads the user record, creating it on first contact. Created
// reports whether this call registered the user.
func (f *Flow) ensureUser(ctx context.Context, ev convo.Event) (*domain.User, bool, error) {
	user, err := f.repo.FindByID(ctx, ev.UserID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, apperrors.NewStoreError(err)
	}

	user = &domain.User{
		TelegramID:       ev.UserID,
		Username:         ev.Username,
		FirstName:        ev.FirstName,
		RegistrationStep: domain.StepTelegramCheck,
		TwitterStatus:    domain.TwitterStatusPending,
		ReferralBy:       parseReferral(ev.Payload, ev.UserID),
		CreatedAt:        time.Now().UTC(),
	}

	if err := f.repo.Create(ctx, user); err != nil {
		return nil, false, apperrors.NewStoreError(err)
	}

	f.log.InfoContext(ctx, "user registered",
		slog.Int64("user_id", user.TelegramID),
		slog.Bool("referred", user.ReferralBy != nil))

	if user.ReferralBy != nil {
		if err := f.repo.IncrementReferralCount(ctx, *user.ReferralBy); err != nil {
			f.log.WarnContext(ctx, "referral credit failed",
				slog.Int64("referrer_id", *user.ReferralBy),
				slog.Any("error", err))
		}
	}

	return user, true, nil
}

func (f *Flow) findUser(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := f.repo.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperrors.NewNotFoundError("user")
	}
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}

	return user, nil
}

// promptFor re-emits the prompt for the user's current stage, used when a
// command or button arrives out of order.
func (f *Flow) promptFor(ctx context.Context, user *domain.User) *convo.Reply {
	switch StateOf(user) {
	case StateTwitterSubmit:
		return convo.NewReply(f.tr.Tf("registration.twitter_follow", f.twitterLink))
	case StateTwitterPending:
		return convo.NewReply(f.tr.T("registration.twitter_still_pending")).
			WithRow(convo.NewAction(f.tr.T("buttons.proceed"), ActionProceedTwitter))
	case StateWalletSubmit:
		return convo.NewReply(f.tr.T("registration.wallet_prompt"))
	case StateCompleted:
		summary := f.tr.Tf("registration.status_summary", user.MaskedWallet())
		return convo.NewReply(f.tr.Tf("registration.already_registered",
			summary, f.referral.Link(user.TelegramID))).
			WithRow(convo.NewAction(f.tr.T("buttons.view_tasks"), ActionViewTasks))
	default:
		return f.joinPrompt("")
	}
}

func (f *Flow) joinPrompt(notice string) *convo.Reply {
	text := f.tr.T("registration.ask_join_groups")
	if notice != "" {
		text += "\n\n" + notice
	}

	return convo.NewReply(text).
		WithRow(convo.NewAction(f.tr.T("buttons.check_again"), ActionCheckTelegram))
}

func (f *Flow) notInGroupPrompt() *convo.Reply {
	text := f.tr.T("registration.not_in_group") + "\n\n" +
		f.tr.T("registration.still_checking_notice")

	return convo.NewReply(text).
		WithRow(convo.NewAction(f.tr.T("buttons.check_again"), ActionCheckTelegram))
}

func (f *Flow) statusText(user *domain.User) string {
	mark := func(ok bool) string {
		if ok {
			return "✅"
		}
		return "❌"
	}

	return f.tr.Tf("registration.status_partial",
		mark(user.TelegramVerified),
		mark(user.TwitterStatus == domain.TwitterStatusApproved),
		mark(user.WalletSubmitted),
		user.MaskedWallet())
}

func (f *Flow) startPoller(userID int64) {
	if f.pollers != nil {
		f.pollers.EnsureStarted(userID)
	}
}

func displayName(ev convo.Event) string {
	if ev.FirstName != "" {
		return ev.FirstName
	}
	if ev.Username != "" {
		return ev.Username
	}

	return strconv.FormatInt(ev.UserID, 10)
}

func parseReferral(payload string, self int64) *int64 {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}

	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 || id == self {
		return nil
	}

	return &id
}
