package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransitionAllowed(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"telegram to twitter", StateTelegramCheck, StateTwitterSubmit, true},
		{"twitter to pending", StateTwitterSubmit, StateTwitterPending, true},
		{"twitter straight to wallet", StateTwitterSubmit, StateWalletSubmit, true},
		{"pending approved", StateTwitterPending, StateWalletSubmit, true},
		{"pending rejected", StateTwitterPending, StateTwitterSubmit, true},
		{"wallet to completed", StateWalletSubmit, StateCompleted, true},
		{"self transition", StateTwitterPending, StateTwitterPending, true},
		{"skip to completed", StateTelegramCheck, StateCompleted, false},
		{"backwards from completed", StateCompleted, StateWalletSubmit, false},
		{"telegram to wallet", StateTelegramCheck, StateWalletSubmit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransitionAllowed(tt.from, tt.to))
		})
	}
}

func TestTransitionRecorder(t *testing.T) {
	var got [][2]State
	RegisterTransitionRecorder(func(from, to State) {
		got = append(got, [2]State{from, to})
	})
	t.Cleanup(func() { RegisterTransitionRecorder(nil) })

	recordTransition(StateTelegramCheck, StateTwitterSubmit)
	recordTransition(StateWalletSubmit, StateWalletSubmit) // self, not recorded
	recordTransition(StateWalletSubmit, StateCompleted)

	assert.Equal(t, [][2]State{
		{StateTelegramCheck, StateTwitterSubmit},
		{StateWalletSubmit, StateCompleted},
	}, got)
}

func TestTransitionRecorderNilSafe(t *testing.T) {
	RegisterTransitionRecorder(nil)
	assert.NotPanics(t, func() {
		recordTransition(StateTelegramCheck, StateTwitterSubmit)
	})
}
