package tranche

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func scenarioPool() PoolState {
	return PoolState{
		Reserve:        dec("1000"),
		NetAssetValue:  dec("5000"),
		SeniorAsset:    dec("3000"),
		MinJuniorRatio: dec("0.1"),
		MaxJuniorRatio: dec("0.3"),
		MaxReserve:     dec("2000"),
	}
}

func healthyPool() PoolState {
	return PoolState{
		Reserve:        dec("1000"),
		NetAssetValue:  dec("9000"),
		SeniorAsset:    dec("8000"),
		MinJuniorRatio: dec("0.1"),
		MaxJuniorRatio: dec("0.3"),
		MaxReserve:     dec("2000"),
	}
}

func TestSolveFullFulfillmentWhenFeasible(t *testing.T) {
	orders := OrderState{SeniorSupply: dec("500")}
	solution := NewSolver(DefaultCurrencyScale).Solve(scenarioPool(), orders, DefaultWeights())

	require.Equal(t, StatusFeasibleNonZero, solution.Status)
	require.True(t, solution.SeniorSupply.Equal(dec("500")))
	require.True(t, solution.SeniorRedeem.IsZero())
	require.True(t, solution.JuniorRedeem.IsZero())
	require.True(t, solution.JuniorSupply.IsZero())
	require.True(t, Project(scenarioPool(), solution).Reserve.Equal(dec("1500")))
}

func TestSolvePartialWhenReserveCapBinds(t *testing.T) {
	pool := scenarioPool()
	orders := OrderState{SeniorSupply: dec("2000")}
	full := Solution{SeniorSupply: dec("2000")}
	require.ErrorIs(t, CheckFeasible(pool, orders, full), ErrMaxReserve)

	solution := NewSolver(DefaultCurrencyScale).Solve(pool, orders, DefaultWeights())
	require.True(t, solution.Status.Feasible())
	require.True(t, solution.SeniorSupply.LessThan(dec("2000")))
	require.True(t, solution.SeniorSupply.Equal(dec("1000")), "got %s", solution.SeniorSupply)
	require.True(t, IsFeasible(pool, orders, solution))
}

func TestSolveRedemptionLimitedByReserve(t *testing.T) {
	pool := healthyPool()
	orders := OrderState{JuniorRedeem: dec("1500")}
	solution := NewSolver(DefaultCurrencyScale).Solve(pool, orders, DefaultWeights())

	require.Equal(t, StatusFeasibleNonZero, solution.Status)
	require.True(t, solution.JuniorRedeem.Equal(dec("1000")), "got %s", solution.JuniorRedeem)
	require.True(t, Project(pool, solution).Reserve.IsZero())
}

func TestSolvePrefersHigherWeightedOrders(t *testing.T) {
	pool := healthyPool()
	orders := OrderState{SeniorRedeem: dec("500"), SeniorSupply: dec("3000")}
	solution := NewSolver(DefaultCurrencyScale).Solve(pool, orders, DefaultWeights())

	require.Equal(t, StatusFeasibleNonZero, solution.Status)
	require.True(t, solution.SeniorRedeem.Equal(dec("500")), "got %s", solution.SeniorRedeem)
	require.True(t, solution.SeniorSupply.Equal(dec("1500")), "got %s", solution.SeniorSupply)
}

func TestSolveTruncatesToScale(t *testing.T) {
	pool := healthyPool()
	pool.MaxReserve = dec("1000.3333333333333333333")
	orders := OrderState{JuniorSupply: dec("3")}
	solution := NewSolver(Scale{Decimals: 6}).Solve(pool, orders, DefaultWeights())

	require.True(t, solution.Status.Feasible())
	require.True(t, solution.JuniorSupply.Equal(dec("0.333333")), "got %s", solution.JuniorSupply)
}

func TestSolveZeroOrders(t *testing.T) {
	solution := NewSolver(DefaultCurrencyScale).Solve(healthyPool(), OrderState{}, DefaultWeights())
	require.Equal(t, StatusFeasibleZero, solution.Status)
	require.True(t, solution.IsZero())
}

func TestSolveInvalidPoolIsInfeasible(t *testing.T) {
	pool := healthyPool()
	pool.MinJuniorRatio = dec("0.5")
	pool.MaxJuniorRatio = dec("0.2")
	solution := NewSolver(DefaultCurrencyScale).Solve(pool, OrderState{SeniorSupply: dec("1")}, DefaultWeights())
	require.Equal(t, StatusInfeasible, solution.Status)
}

func TestSimplexTextbookProgram(t *testing.T) {
	lp := linearProgram{
		objective: []*big.Rat{big.NewRat(1, 1), big.NewRat(1, 1)},
		rows: [][]*big.Rat{
			{big.NewRat(1, 1), big.NewRat(2, 1)},
			{big.NewRat(3, 1), big.NewRat(1, 1)},
		},
		bounds: []*big.Rat{big.NewRat(4, 1), big.NewRat(6, 1)},
	}
	x, err := lp.maximize()
	require.NoError(t, err)
	require.Equal(t, 0, x[0].Cmp(big.NewRat(8, 5)), "x0=%s", x[0].RatString())
	require.Equal(t, 0, x[1].Cmp(big.NewRat(6, 5)), "x1=%s", x[1].RatString())
}

func TestSimplexRejectsNegativeBounds(t *testing.T) {
	lp := linearProgram{
		objective: []*big.Rat{big.NewRat(1, 1)},
		rows:      [][]*big.Rat{{big.NewRat(1, 1)}},
		bounds:    []*big.Rat{big.NewRat(-1, 1)},
	}
	_, err := lp.maximize()
	require.ErrorIs(t, err, errInfeasibleLP)
}

func TestSolutionScore(t *testing.T) {
	s := Solution{SeniorRedeem: dec("2"), SeniorSupply: dec("3")}
	require.True(t, s.Score(DefaultWeights()).Equal(dec("2003000")))
}
