package epoch

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrIllegalTransition rejects an action the current phase does not
	// permit, before any ledger call is made.
	ErrIllegalTransition = errors.New("epoch: illegal transition")
	// ErrPhaseRegression reports ledger state that moved backwards.
	ErrPhaseRegression = errors.New("epoch: phase regression")
)

// Action is a ledger write that advances the epoch.
type Action uint8

const (
	ActionClose Action = iota
	ActionSubmit
	ActionExecute
)

func (a Action) String() string {
	switch a {
	case ActionClose:
		return "close"
	case ActionSubmit:
		return "submit"
	case ActionExecute:
		return "execute"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Derive computes the phase from ledger state and ledger block time only.
// The function is pure: the same status always yields the same phase.
func Derive(s Status) Phase {
	if s.SubmissionPeriod {
		if s.MinChallengePeriodEnd.IsZero() {
			return PhaseInSubmissionPeriod
		}
		if s.BlockTime.Before(s.MinChallengePeriodEnd) {
			return PhaseInChallengePeriod
		}
		return PhaseChallengePeriodEnded
	}
	if !s.BlockTime.Before(s.ClosableAt()) {
		return PhaseCanBeClosed
	}
	return PhaseOpen
}

// Allowed reports whether the action may be issued during the phase.
// Submissions remain legal during the challenge period because a better
// solution may replace the current one.
func Allowed(phase Phase, action Action) error {
	ok := false
	switch action {
	case ActionClose:
		ok = phase == PhaseCanBeClosed
	case ActionSubmit:
		ok = phase == PhaseInSubmissionPeriod || phase == PhaseInChallengePeriod
	case ActionExecute:
		ok = phase == PhaseChallengePeriodEnded
	}
	if !ok {
		return fmt.Errorf("%w: %s during %s", ErrIllegalTransition, action, phase)
	}
	return nil
}

// Tracker records the phases observed for a pool and rejects observations
// that move backwards within an epoch or to an older epoch.
type Tracker struct {
	mu      sync.Mutex
	seen    bool
	epochID uint64
	phase   Phase
	history []Phase
}

// Observe records the phase for the epoch.
func (t *Tracker) Observe(epochID uint64, phase Phase) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen {
		if epochID < t.epochID {
			return fmt.Errorf("%w: epoch %d after epoch %d", ErrPhaseRegression, epochID, t.epochID)
		}
		if epochID == t.epochID && phase < t.phase {
			return fmt.Errorf("%w: epoch %d moved from %s to %s", ErrPhaseRegression, epochID, t.phase, phase)
		}
	}
	if !t.seen || epochID != t.epochID {
		t.history = t.history[:0]
	}
	if len(t.history) == 0 || t.history[len(t.history)-1] != phase {
		t.history = append(t.history, phase)
	}
	t.seen = true
	t.epochID = epochID
	t.phase = phase
	return nil
}

// Current returns the last observed epoch and phase.
func (t *Tracker) Current() (uint64, Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epochID, t.phase, t.seen
}

// History returns the distinct phases observed for the current epoch in
// order.
func (t *Tracker) History() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Phase(nil), t.history...)
}
