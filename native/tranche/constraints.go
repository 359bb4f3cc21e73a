package tranche

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeFulfillment = errors.New("tranche: solution amounts must be non-negative")
	ErrOverFulfillment     = errors.New("tranche: solution exceeds requested orders")
	ErrReserveNegative     = errors.New("tranche: resulting reserve below zero")
	ErrMaxReserve          = errors.New("tranche: resulting reserve above max reserve")
	ErrMinJuniorRatio      = errors.New("tranche: resulting junior ratio below minimum")
	ErrMaxJuniorRatio      = errors.New("tranche: resulting junior ratio above maximum")
	ErrInvalidPool         = errors.New("tranche: invalid pool state")
)

// Projection is the pool capital structure after applying a solution.
type Projection struct {
	Reserve     decimal.Decimal
	SeniorAsset decimal.Decimal
	JuniorAsset decimal.Decimal
	// Total is NAV plus the resulting reserve; JuniorAsset + SeniorAsset.
	Total decimal.Decimal
}

// JuniorRatio returns junior/(junior+senior) and false when the pool would
// hold no value at all.
func (p Projection) JuniorRatio() (decimal.Decimal, bool) {
	if p.Total.Sign() == 0 {
		return decimal.Zero, false
	}
	return p.JuniorAsset.DivRound(p.Total, DefaultRatioScale.Decimals), true
}

// Project applies the solution to the pool snapshot.
func Project(pool PoolState, s Solution) Projection {
	reserve := pool.Reserve.Sub(s.SeniorRedeem).Sub(s.JuniorRedeem).Add(s.JuniorSupply).Add(s.SeniorSupply)
	senior := pool.SeniorAsset.Add(s.SeniorSupply).Sub(s.SeniorRedeem)
	total := pool.NetAssetValue.Add(reserve)
	return Projection{
		Reserve:     reserve,
		SeniorAsset: senior,
		JuniorAsset: total.Sub(senior),
		Total:       total,
	}
}

// slacks evaluates each capital bound as a linear slack that is non-negative
// when the bound holds: reserve >= 0, maxReserve - reserve >= 0,
// junior - min*total >= 0 and max*total - junior >= 0.
func slacks(pool PoolState, p Projection) [4]decimal.Decimal {
	return [4]decimal.Decimal{
		p.Reserve,
		pool.MaxReserve.Sub(p.Reserve),
		p.JuniorAsset.Sub(pool.MinJuniorRatio.Mul(p.Total)),
		pool.MaxJuniorRatio.Mul(p.Total).Sub(p.JuniorAsset),
	}
}

var slackErrors = [4]error{ErrReserveNegative, ErrMaxReserve, ErrMinJuniorRatio, ErrMaxJuniorRatio}

// CheckFeasible returns nil when the solution may be executed against the
// pool, or the first rule it violates. A bound the pool already breaks before
// settlement only requires that the solution does not move the pool further
// away from it, so the zero solution is accepted for every valid pool.
func CheckFeasible(pool PoolState, orders OrderState, s Solution) error {
	if err := pool.Validate(); err != nil {
		return errors.Join(ErrInvalidPool, err)
	}
	amounts := s.fields()
	requested := orders.fields()
	for i := range amounts {
		if amounts[i].Sign() < 0 {
			return ErrNegativeFulfillment
		}
		if amounts[i].GreaterThan(requested[i]) {
			return ErrOverFulfillment
		}
	}
	before := slacks(pool, Project(pool, ZeroSolution()))
	after := slacks(pool, Project(pool, s))
	for i := range after {
		floor := decimal.Min(before[i], decimal.Zero)
		if after[i].LessThan(floor) {
			return slackErrors[i]
		}
	}
	return nil
}

// IsFeasible is the boolean form of CheckFeasible.
func IsFeasible(pool PoolState, orders OrderState, s Solution) bool {
	return CheckFeasible(pool, orders, s) == nil
}

// Healthy reports whether the pool currently satisfies every capital bound.
func Healthy(pool PoolState) bool {
	for _, slack := range slacks(pool, Project(pool, ZeroSolution())) {
		if slack.Sign() < 0 {
			return false
		}
	}
	return true
}
