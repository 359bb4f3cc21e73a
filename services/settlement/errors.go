package settlement

import "errors"

var (
	// ErrLedgerUnavailable is returned once the retry policy gives up on a
	// transient ledger fault. The last cause stays wrapped.
	ErrLedgerUnavailable = errors.New("settlement: ledger unavailable")
	// ErrStaleState reports that the ledger moved between solving and
	// validation. The coordinator re-solves.
	ErrStaleState = errors.New("settlement: stale state")
	// ErrInfeasible means not even the zero solution satisfies the pool
	// constraints. The pool is halted.
	ErrInfeasible = errors.New("settlement: no feasible solution")
	// ErrZeroRejected means the ledger refused the zero solution with a
	// feasibility code. Engine and ledger disagree on the constraints, so the
	// pool is halted.
	ErrZeroRejected = errors.New("settlement: ledger rejected the zero solution")
	// ErrHalted is returned by Step while the pool is halted.
	ErrHalted = errors.New("settlement: pool halted")
	// ErrPoolNotFound is returned by the supervisor for unknown pool ids.
	ErrPoolNotFound = errors.New("settlement: pool not found")
)
