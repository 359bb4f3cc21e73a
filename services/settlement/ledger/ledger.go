package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"trancheclear/core/epoch"
	"trancheclear/native/tranche"
)

var (
	// ErrReverted reports a definitive on-chain failure without a status code.
	ErrReverted = errors.New("ledger: transaction reverted")
	// ErrNotConfigured is returned when a write is attempted without a signer.
	ErrNotConfigured = errors.New("ledger: writer not configured")
)

// Status codes returned by the coordinator's solution validation. Zero is the
// only success value; every other code is a reason the ledger rejected the
// submission and is surfaced verbatim.
const (
	CodeSuccess           int64 = 0
	CodeCurrencyAvailable int64 = -1
	CodeMaxOrder          int64 = -2
	CodeMaxReserve        int64 = -3
	CodeMinSeniorRatio    int64 = -4
	CodeMaxSeniorRatio    int64 = -5
	CodeNotNewBest        int64 = -6
	CodePoolClosing       int64 = -7
)

var codeReasons = map[int64]string{
	CodeCurrencyAvailable: "insufficient currency available",
	CodeMaxOrder:          "solution exceeds orders",
	CodeMaxReserve:        "max reserve exceeded",
	CodeMinSeniorRatio:    "senior ratio below minimum",
	CodeMaxSeniorRatio:    "senior ratio above maximum",
	CodeNotNewBest:        "solution does not improve the current best",
	CodePoolClosing:       "pool closing",
}

// RevertError carries the raw status code the ledger rejected a submission
// with.
type RevertError struct {
	Code   int64
	Reason string
}

func (e *RevertError) Error() string {
	if e == nil {
		return ""
	}
	reason := e.Reason
	if reason == "" {
		reason = "unrecognised status"
	}
	return fmt.Sprintf("ledger: submission rejected with code %d: %s", e.Code, reason)
}

// Known reports whether the code is one of the documented rejection reasons.
func (e *RevertError) Known() bool {
	if e == nil {
		return false
	}
	_, ok := codeReasons[e.Code]
	return ok
}

// NewRevertError builds the error for a non-zero status code.
func NewRevertError(code int64) *RevertError {
	return &RevertError{Code: code, Reason: codeReasons[code]}
}

// PendingError reports that a transaction was broadcast but its outcome
// could not be confirmed. The write must not be re-sent blindly; callers
// re-read ledger state instead.
type PendingError struct {
	TxHash common.Hash
	Err    error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("ledger: transaction %s unconfirmed: %v", e.TxHash.Hex(), e.Err)
}

func (e *PendingError) Unwrap() error { return e.Err }

// Confirmation describes a mined ledger write.
type Confirmation struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	BlockTime   time.Time   `json:"block_time"`
}

// PoolStateReader reads the capital structure of the pool.
type PoolStateReader interface {
	ReadPoolState(ctx context.Context) (tranche.PoolState, error)
}

// OrderAggregator reads the aggregate requests of the open epoch.
type OrderAggregator interface {
	ReadOrderState(ctx context.Context) (tranche.OrderState, error)
}

// EpochReader reads the raw epoch bookkeeping at the latest block.
type EpochReader interface {
	ReadEpochStatus(ctx context.Context) (epoch.Status, error)
}

// Writer issues the epoch-advancing transactions and waits for them to be
// mined.
type Writer interface {
	CloseEpoch(ctx context.Context) (Confirmation, error)
	SubmitSolution(ctx context.Context, solution tranche.Solution) (Confirmation, error)
	ExecuteEpoch(ctx context.Context) (Confirmation, error)
}

// Admin updates epoch timing parameters.
type Admin interface {
	SetMinimumEpochTime(ctx context.Context, d time.Duration) (Confirmation, error)
	SetMinimumChallengeTime(ctx context.Context, d time.Duration) (Confirmation, error)
}

// Ledger is everything the settlement engine needs from a pool deployment.
type Ledger interface {
	PoolStateReader
	OrderAggregator
	EpochReader
	Writer
	Admin
}
