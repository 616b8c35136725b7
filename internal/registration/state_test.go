package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/greendale-game/airdrop-bot/internal/domain"
)

func TestStateOf(t *testing.T) {
	tests := []struct {
		name string
		user *domain.User
		want State
	}{
		{
			name: "nil user",
			user: nil,
			want: StateTelegramCheck,
		},
		{
			name: "fresh record",
			user: &domain.User{RegistrationStep: domain.StepTelegramCheck},
			want: StateTelegramCheck,
		},
		{
			name: "zero step record",
			user: &domain.User{},
			want: StateTelegramCheck,
		},
		{
			name: "twitter step without handle",
			user: &domain.User{
				RegistrationStep: domain.StepTwitterSubmit,
				TwitterStatus:    domain.TwitterStatusPending,
			},
			want: StateTwitterSubmit,
		},
		{
			name: "twitter step with pending handle",
			user: &domain.User{
				RegistrationStep: domain.StepTwitterSubmit,
				TwitterID:        "alice",
				TwitterStatus:    domain.TwitterStatusPending,
			},
			want: StateTwitterPending,
		},
		{
			name: "twitter step approved",
			user: &domain.User{
				RegistrationStep: domain.StepTwitterSubmit,
				TwitterID:        "alice",
				TwitterStatus:    domain.TwitterStatusApproved,
			},
			want: StateWalletSubmit,
		},
		{
			name: "twitter step rejected",
			user: &domain.User{
				RegistrationStep: domain.StepTwitterSubmit,
				TwitterID:        "alice",
				TwitterStatus:    domain.TwitterStatusRejected,
			},
			want: StateTwitterSubmit,
		},
		{
			name: "wallet step",
			user: &domain.User{RegistrationStep: domain.StepWalletSubmit},
			want: StateWalletSubmit,
		},
		{
			name: "completed",
			user: &domain.User{RegistrationStep: domain.StepCompleted},
			want: StateCompleted,
		},
		{
			name: "step beyond completed",
			user: &domain.User{RegistrationStep: domain.StepCompleted + 3},
			want: StateCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.user))
		})
	}
}

// The projection must be total: any combination of step and status maps to
// exactly one state without panicking.
func TestStateOfIsTotal(t *testing.T) {
	statuses := []domain.TwitterStatus{
		domain.TwitterStatusPending,
		domain.TwitterStatusApproved,
		domain.TwitterStatusRejected,
		domain.TwitterStatus("garbage"),
		domain.TwitterStatus(""),
	}

	for step := -1; step <= 10; step++ {
		for _, status := range statuses {
			for _, handle := range []string{"", "alice"} {
				u := &domain.User{
					RegistrationStep: step,
					TwitterStatus:    status,
					TwitterID:        handle,
				}
				assert.NotEmpty(t, StateOf(u))
			}
		}
	}
}
