package tranche

import (
	"errors"
	"math/big"
)

const maxPivots = 512

var (
	errUnbounded     = errors.New("tranche: linear program unbounded")
	errPivotLimit    = errors.New("tranche: simplex pivot limit reached")
	errInfeasibleLP  = errors.New("tranche: linear program bounds must be non-negative")
	errMalformedPlan = errors.New("tranche: linear program dimensions mismatch")
)

// linearProgram is max c·x subject to A·x <= b, x >= 0 with b >= 0, so the
// origin is always a feasible basis and no phase-one pass is needed.
type linearProgram struct {
	objective []*big.Rat
	rows      [][]*big.Rat
	bounds    []*big.Rat
}

// maximize runs an exact rational simplex using Bland's rule, which cannot
// cycle.
func (lp linearProgram) maximize() ([]*big.Rat, error) {
	n := len(lp.objective)
	m := len(lp.rows)
	if len(lp.bounds) != m {
		return nil, errMalformedPlan
	}
	width := n + m
	tableau := make([][]*big.Rat, m)
	rhs := make([]*big.Rat, m)
	basis := make([]int, m)
	for i, row := range lp.rows {
		if len(row) != n {
			return nil, errMalformedPlan
		}
		if lp.bounds[i].Sign() < 0 {
			return nil, errInfeasibleLP
		}
		tableau[i] = make([]*big.Rat, width)
		for j := 0; j < width; j++ {
			switch {
			case j < n:
				tableau[i][j] = new(big.Rat).Set(row[j])
			case j-n == i:
				tableau[i][j] = big.NewRat(1, 1)
			default:
				tableau[i][j] = new(big.Rat)
			}
		}
		rhs[i] = new(big.Rat).Set(lp.bounds[i])
		basis[i] = n + i
	}
	reduced := make([]*big.Rat, width)
	for j := range reduced {
		if j < n {
			reduced[j] = new(big.Rat).Neg(lp.objective[j])
		} else {
			reduced[j] = new(big.Rat)
		}
	}

	for pivots := 0; ; pivots++ {
		if pivots >= maxPivots {
			return nil, errPivotLimit
		}
		enter := -1
		for j := range reduced {
			if reduced[j].Sign() < 0 {
				enter = j
				break
			}
		}
		if enter < 0 {
			break
		}
		leave := -1
		var best *big.Rat
		for i := 0; i < m; i++ {
			if tableau[i][enter].Sign() <= 0 {
				continue
			}
			ratio := new(big.Rat).Quo(rhs[i], tableau[i][enter])
			if leave < 0 {
				leave, best = i, ratio
				continue
			}
			cmp := ratio.Cmp(best)
			if cmp < 0 || (cmp == 0 && basis[i] < basis[leave]) {
				leave, best = i, ratio
			}
		}
		if leave < 0 {
			return nil, errUnbounded
		}
		pivot(tableau, rhs, reduced, leave, enter)
		basis[leave] = enter
	}

	solution := make([]*big.Rat, n)
	for j := range solution {
		solution[j] = new(big.Rat)
	}
	for i, column := range basis {
		if column < n {
			solution[column].Set(rhs[i])
		}
	}
	return solution, nil
}

func pivot(tableau [][]*big.Rat, rhs []*big.Rat, reduced []*big.Rat, row, col int) {
	inv := new(big.Rat).Inv(tableau[row][col])
	for j := range tableau[row] {
		tableau[row][j].Mul(tableau[row][j], inv)
	}
	rhs[row].Mul(rhs[row], inv)
	eliminate := func(target []*big.Rat, targetRHS *big.Rat) {
		factor := new(big.Rat).Set(target[col])
		if factor.Sign() == 0 {
			return
		}
		for j := range target {
			target[j].Sub(target[j], new(big.Rat).Mul(factor, tableau[row][j]))
		}
		if targetRHS != nil {
			targetRHS.Sub(targetRHS, new(big.Rat).Mul(factor, rhs[row]))
		}
	}
	for i := range tableau {
		if i == row {
			continue
		}
		eliminate(tableau[i], rhs[i])
	}
	eliminate(reduced, nil)
}
