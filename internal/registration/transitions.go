package registration

import "sync"

// validTransitions lists which state changes the flow is allowed to make.
// Self transitions are implicitly allowed (re-reading a record never counts
// as a transition).
var validTransitions = map[State][]State{
	StateTelegramCheck:  {StateTwitterSubmit},
	StateTwitterSubmit:  {StateTwitterPending, StateWalletSubmit},
	StateTwitterPending: {StateWalletSubmit, StateTwitterSubmit},
	StateWalletSubmit:   {StateCompleted},
	StateCompleted:      {},
}

// IsTransitionAllowed reports whether moving from one state to another is
// permitted by the flow. Identical states are always allowed.
func IsTransitionAllowed(from, to State) bool {
	if from == to {
		return true
	}

	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// TransitionRecorder observes every successful state transition, e.g. to
// export counters.
type TransitionRecorder func(from, to State)

var (
	recorderMu sync.RWMutex
	recorder   TransitionRecorder
)

// RegisterTransitionRecorder installs a hook invoked on every recorded
// transition. Passing nil removes the hook.
func RegisterTransitionRecorder(fn TransitionRecorder) {
	recorderMu.Lock()
	defer recorderMu.Unlock()
	recorder = fn
}

func recordTransition(from, to State) {
	recorderMu.RLock()
	fn := recorder
	recorderMu.RUnlock()

	if fn != nil && from != to {
		fn(from, to)
	}
}
