package epoch

import (
	"fmt"
	"time"
)

// Phase is the settlement stage of the current epoch. Phases only move
// forward within one epoch.
type Phase uint8

const (
	PhaseOpen Phase = iota
	PhaseCanBeClosed
	PhaseInSubmissionPeriod
	PhaseInChallengePeriod
	PhaseChallengePeriodEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseCanBeClosed:
		return "can-be-closed"
	case PhaseInSubmissionPeriod:
		return "in-submission-period"
	case PhaseInChallengePeriod:
		return "in-challenge-period"
	case PhaseChallengePeriodEnded:
		return "challenge-period-ended"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Status is the raw epoch bookkeeping reported by the ledger together with
// the timestamp of the block it was read at. Client wall-clock time is never
// part of it.
type Status struct {
	// EpochID is the epoch being collected or settled: one past the last
	// executed epoch. It does not move when an epoch is closed.
	EpochID uint64
	// CurrentEpoch is the ledger's own counter, which advances on close.
	CurrentEpoch     uint64
	LastEpochClosed  time.Time
	MinimumEpochTime time.Duration
	ChallengeTime    time.Duration
	SubmissionPeriod bool
	// MinChallengePeriodEnd is zero until a solution has been accepted.
	MinChallengePeriodEnd time.Time
	LastEpochExecuted     uint64
	BlockTime             time.Time
}

// Epoch summarises the current epoch for operators.
type Epoch struct {
	ID                       uint64        `json:"id"`
	LastClosedAt             time.Time     `json:"last_closed_at"`
	MinimumDuration          time.Duration `json:"minimum_duration"`
	MinimumChallengeDuration time.Duration `json:"minimum_challenge_duration"`
	Phase                    Phase         `json:"-"`
	PhaseName                string        `json:"phase"`
}

// Epoch converts the status into its summary representation.
func (s Status) Epoch() Epoch {
	phase := Derive(s)
	return Epoch{
		ID:                       s.EpochID,
		LastClosedAt:             s.LastEpochClosed,
		MinimumDuration:          s.MinimumEpochTime,
		MinimumChallengeDuration: s.ChallengeTime,
		Phase:                    phase,
		PhaseName:                phase.String(),
	}
}

// ClosableAt is the earliest block time at which the epoch may be closed.
func (s Status) ClosableAt() time.Time {
	return s.LastEpochClosed.Add(s.MinimumEpochTime)
}
