package domain

import "time"

// Registration step markers persisted on the user record. The step only
// moves forward; the twitter rejection loop keeps the step at
// StepTwitterSubmit.
const (
	StepTelegramCheck = 1
	StepTwitterSubmit = 2
	StepWalletSubmit  = 3
	StepCompleted     = 4
)

// TwitterStatus is the admin-controlled verification status of the
// submitted X (Twitter) handle.
type TwitterStatus string

const (
	TwitterStatusPending  TwitterStatus = "pending"
	TwitterStatusApproved TwitterStatus = "approved"
	TwitterStatusRejected TwitterStatus = "rejected"
)

// User is one airdrop participant, keyed by their Telegram identifier.
type User struct {
	TelegramID       int64
	Username         string
	FirstName        string
	RegistrationStep int
	TelegramVerified bool
	TwitterID        string
	TwitterStatus    TwitterStatus
	Wallet           string
	WalletSubmitted  bool
	Verified         bool
	ReferralCount    int
	ReferralBy       *int64
	CreatedAt        time.Time
}

// Completed reports whether the user finished every registration step.
func (u *User) Completed() bool {
	return u != nil && u.RegistrationStep >= StepCompleted
}

// MaskedWallet returns the wallet shortened for status summaries.
func (u *User) MaskedWallet() string {
	if u == nil || u.Wallet == "" {
		return "Not set"
	}

	if len(u.Wallet) <= 10 {
		return u.Wallet + "..."
	}

	return u.Wallet[:10] + "..."
}
