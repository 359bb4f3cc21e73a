package tranche

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	errNegativeField = errors.New("tranche: values must be non-negative")
	errRatioBounds   = errors.New("tranche: junior ratio bounds must satisfy min <= max <= 1")
)

// PoolState is an immutable snapshot of the pool's capital structure as read
// from the ledger. A new read always produces a new value.
type PoolState struct {
	Reserve        decimal.Decimal
	NetAssetValue  decimal.Decimal
	SeniorAsset    decimal.Decimal
	MinJuniorRatio decimal.Decimal
	MaxJuniorRatio decimal.Decimal
	MaxReserve     decimal.Decimal
	// SeniorInterestRate is the per-second senior fee in ratio units (1.0 means
	// no interest). Informational only; the constraint model ignores it.
	SeniorInterestRate decimal.Decimal
}

// Validate checks the snapshot invariants.
func (p PoolState) Validate() error {
	for _, v := range []decimal.Decimal{p.Reserve, p.NetAssetValue, p.SeniorAsset, p.MinJuniorRatio, p.MaxJuniorRatio, p.MaxReserve} {
		if v.Sign() < 0 {
			return errNegativeField
		}
	}
	if p.MinJuniorRatio.GreaterThan(p.MaxJuniorRatio) || p.MaxJuniorRatio.GreaterThan(decimal.NewFromInt(1)) {
		return errRatioBounds
	}
	return nil
}

// JuniorAsset returns the residual value attributable to the junior tranche.
func (p PoolState) JuniorAsset() decimal.Decimal {
	return p.NetAssetValue.Add(p.Reserve).Sub(p.SeniorAsset)
}

// OrderState aggregates the pending requests of the open epoch.
type OrderState struct {
	SeniorRedeem decimal.Decimal
	JuniorRedeem decimal.Decimal
	JuniorSupply decimal.Decimal
	SeniorSupply decimal.Decimal
}

// Validate checks that every order amount is non-negative.
func (o OrderState) Validate() error {
	for _, v := range o.fields() {
		if v.Sign() < 0 {
			return errNegativeField
		}
	}
	return nil
}

// IsZero reports whether there is nothing to settle.
func (o OrderState) IsZero() bool {
	for _, v := range o.fields() {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

func (o OrderState) fields() [4]decimal.Decimal {
	return [4]decimal.Decimal{o.SeniorRedeem, o.JuniorRedeem, o.JuniorSupply, o.SeniorSupply}
}

// Weights rank partial fulfillment when the full order book cannot clear. The
// defaults prioritise redemptions over supply and senior over junior.
type Weights struct {
	SeniorRedeem decimal.Decimal
	JuniorRedeem decimal.Decimal
	JuniorSupply decimal.Decimal
	SeniorSupply decimal.Decimal
}

// DefaultWeights returns the conventional redemption-first ordering.
func DefaultWeights() Weights {
	return Weights{
		SeniorRedeem: decimal.NewFromInt(1_000_000),
		JuniorRedeem: decimal.NewFromInt(100_000),
		JuniorSupply: decimal.NewFromInt(10_000),
		SeniorSupply: decimal.NewFromInt(1_000),
	}
}

// Validate ensures weights are non-negative with at least one positive entry.
func (w Weights) Validate() error {
	positive := false
	for _, v := range w.fields() {
		if v.Sign() < 0 {
			return fmt.Errorf("tranche: weights must be non-negative")
		}
		if v.Sign() > 0 {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("tranche: at least one weight must be positive")
	}
	return nil
}

func (w Weights) fields() [4]decimal.Decimal {
	return [4]decimal.Decimal{w.SeniorRedeem, w.JuniorRedeem, w.JuniorSupply, w.SeniorSupply}
}

// SolutionStatus classifies a settlement candidate.
type SolutionStatus uint8

const (
	StatusInfeasible SolutionStatus = iota
	StatusFeasibleZero
	StatusFeasibleNonZero
)

func (s SolutionStatus) String() string {
	switch s {
	case StatusInfeasible:
		return "infeasible"
	case StatusFeasibleZero:
		return "feasible_zero"
	case StatusFeasibleNonZero:
		return "feasible_nonzero"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Feasible reports whether the status permits submission.
func (s SolutionStatus) Feasible() bool {
	return s == StatusFeasibleZero || s == StatusFeasibleNonZero
}

// Solution holds the amounts executed per tranche and action.
type Solution struct {
	SeniorRedeem decimal.Decimal
	JuniorRedeem decimal.Decimal
	JuniorSupply decimal.Decimal
	SeniorSupply decimal.Decimal
	Status       SolutionStatus
}

// ZeroSolution settles nothing.
func ZeroSolution() Solution {
	return Solution{Status: StatusFeasibleZero}
}

// IsZero reports whether every amount is zero.
func (s Solution) IsZero() bool {
	for _, v := range s.fields() {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

// Score is the weighted sum of executed amounts, used to compare competing
// submissions for the same epoch.
func (s Solution) Score(w Weights) decimal.Decimal {
	amounts := s.fields()
	weights := w.fields()
	total := decimal.Zero
	for i := range amounts {
		total = total.Add(amounts[i].Mul(weights[i]))
	}
	return total
}

// Equal compares amounts, ignoring the status.
func (s Solution) Equal(other Solution) bool {
	a, b := s.fields(), other.fields()
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (s Solution) fields() [4]decimal.Decimal {
	return [4]decimal.Decimal{s.SeniorRedeem, s.JuniorRedeem, s.JuniorSupply, s.SeniorSupply}
}

func (s Solution) withStatus() Solution {
	if s.IsZero() {
		s.Status = StatusFeasibleZero
	} else {
		s.Status = StatusFeasibleNonZero
	}
	return s
}

func solutionFromFields(f [4]decimal.Decimal) Solution {
	return Solution{SeniorRedeem: f[0], JuniorRedeem: f[1], JuniorSupply: f[2], SeniorSupply: f[3]}
}
