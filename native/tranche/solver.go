package tranche

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// shrinkSchedule scales an optimal point towards zero when truncating to the
// ledger scale pushes it just outside a tight bound. The feasible region is
// convex and contains zero, so every step stays inside it before truncation.
var shrinkSchedule = []*big.Rat{
	big.NewRat(1, 1),
	mustRat("0.999999999999999"),
	mustRat("0.999999999999"),
	mustRat("0.999999999"),
	mustRat("0.999999"),
	big.NewRat(999, 1000),
	big.NewRat(99, 100),
	big.NewRat(9, 10),
	big.NewRat(3, 4),
	big.NewRat(1, 2),
	big.NewRat(1, 4),
}

func mustRat(value string) *big.Rat {
	r, ok := new(big.Rat).SetString(value)
	if !ok {
		panic("invalid rational constant")
	}
	return r
}

// Solver computes the settlement that maximises the weighted sum of
// fulfillment ratios subject to the pool's capital constraints.
type Solver struct {
	scale Scale
}

// NewSolver constructs a solver that truncates amounts to the given currency
// scale.
func NewSolver(scale Scale) *Solver {
	return &Solver{scale: scale}
}

// Solve returns the best feasible settlement. The result is tagged Infeasible
// only when even the zero solution is rejected, which means the inputs break
// the pool invariants and nothing must be submitted.
func (s *Solver) Solve(pool PoolState, orders OrderState, weights Weights) Solution {
	if pool.Validate() != nil || orders.Validate() != nil {
		return Solution{Status: StatusInfeasible}
	}
	full := solutionFromFields(orders.fields())
	if IsFeasible(pool, orders, full) {
		return full.withStatus()
	}
	if candidate, ok := s.optimize(pool, orders, weights); ok {
		return candidate
	}
	zero := ZeroSolution()
	if IsFeasible(pool, orders, zero) {
		return zero
	}
	return Solution{Status: StatusInfeasible}
}

func (s *Solver) optimize(pool PoolState, orders OrderState, weights Weights) (Solution, bool) {
	requested := orders.fields()
	lp := buildProgram(pool, requested, weights)
	ratios, err := lp.maximize()
	if err != nil {
		return Solution{}, false
	}
	for _, factor := range shrinkSchedule {
		var amounts [4]decimal.Decimal
		for i := range amounts {
			if ratios[i].Sign() <= 0 || requested[i].Sign() == 0 {
				amounts[i] = decimal.Zero
				continue
			}
			ratio := new(big.Rat).Mul(ratios[i], factor)
			if ratio.Cmp(big.NewRat(1, 1)) > 0 {
				ratio.SetInt64(1)
			}
			amount := s.scale.floorRat(new(big.Rat).Mul(ratio, requested[i].Rat()))
			amounts[i] = decimal.Min(amount, requested[i])
		}
		candidate := solutionFromFields(amounts)
		if IsFeasible(pool, orders, candidate) {
			return candidate.withStatus(), true
		}
	}
	return Solution{}, false
}

// buildProgram linearises the constraint model over fulfillment ratios. Each
// slack is affine in the executed amounts, so its coefficient for ratio k is
// slack(requested_k in field k) - slack(zero).
func buildProgram(pool PoolState, requested [4]decimal.Decimal, weights Weights) linearProgram {
	base := slacks(pool, Project(pool, ZeroSolution()))
	w := weights.fields()
	lp := linearProgram{objective: make([]*big.Rat, 4)}
	for k := range requested {
		if requested[k].Sign() > 0 {
			lp.objective[k] = w[k].Rat()
		} else {
			lp.objective[k] = new(big.Rat)
		}
	}
	var coeffs [4][4]*big.Rat
	for k := range requested {
		var unit [4]decimal.Decimal
		unit[k] = requested[k]
		moved := slacks(pool, Project(pool, solutionFromFields(unit)))
		for c := range moved {
			coeffs[c][k] = moved[c].Sub(base[c]).Rat()
		}
	}
	for c := range base {
		row := make([]*big.Rat, 4)
		for k := range row {
			row[k] = new(big.Rat).Neg(coeffs[c][k])
		}
		bound := base[c].Rat()
		if bound.Sign() < 0 {
			bound = new(big.Rat)
		}
		lp.rows = append(lp.rows, row)
		lp.bounds = append(lp.bounds, bound)
	}
	for k := range requested {
		row := make([]*big.Rat, 4)
		for j := range row {
			row[j] = new(big.Rat)
		}
		row[k].SetInt64(1)
		lp.rows = append(lp.rows, row)
		lp.bounds = append(lp.bounds, big.NewRat(1, 1))
	}
	return lp
}
