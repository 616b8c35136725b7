// Package registration implements the airdrop onboarding flow: the
// registration state projection, the allowed-transition table, and the
// conversation flow that drives a user from first contact to a completed
// profile.
package registration

import "github.com/greendale-game/airdrop-bot/internal/domain"

// State is the registration stage of a user. States are never stored;
// they are projected from the persisted user record on every read.
type State string

const (
	// StateTelegramCheck means the user still has to prove membership in
	// the required Telegram groups.
	StateTelegramCheck State = "TELEGRAM_CHECK"
	// StateTwitterSubmit means the user must submit a Twitter handle
	// (either for the first time or again after a rejection).
	StateTwitterSubmit State = "TWITTER_SUBMIT"
	// StateTwitterPending means a submitted handle awaits moderation.
	StateTwitterPending State = "TWITTER_PENDING"
	// StateWalletSubmit means the user must submit a wallet address.
	StateWalletSubmit State = "WALLET_SUBMIT"
	// StateCompleted means registration is finished.
	StateCompleted State = "COMPLETED"
)

// StateOf projects the registration state from a user record. It is total:
// every record, including inconsistent ones, maps to exactly one state.
// A nil user projects to StateTelegramCheck, same as an unknown user.
func StateOf(u *domain.User) State {
	if u == nil {
		return StateTelegramCheck
	}

	switch {
	case u.RegistrationStep >= domain.StepCompleted:
		return StateCompleted
	case u.RegistrationStep == domain.StepWalletSubmit:
		return StateWalletSubmit
	case u.RegistrationStep == domain.StepTwitterSubmit:
		switch u.TwitterStatus {
		case domain.TwitterStatusApproved:
			return StateWalletSubmit
		case domain.TwitterStatusRejected:
			return StateTwitterSubmit
		default:
			if u.TwitterID != "" {
				return StateTwitterPending
			}
			return StateTwitterSubmit
		}
	default:
		return StateTelegramCheck
	}
}
