package tranche

import (
	"errors"
	"testing"
)

func TestCheckFeasibleRules(t *testing.T) {
	pool := healthyPool()
	orders := OrderState{
		SeniorRedeem: dec("5000"),
		JuniorRedeem: dec("5000"),
		JuniorSupply: dec("5000"),
		SeniorSupply: dec("5000"),
	}
	cases := []struct {
		name     string
		solution Solution
		want     error
	}{
		{name: "zero", solution: ZeroSolution()},
		{name: "negative", solution: Solution{SeniorSupply: dec("-1")}, want: ErrNegativeFulfillment},
		{name: "over fulfillment", solution: Solution{SeniorSupply: dec("5000.01")}, want: ErrOverFulfillment},
		{name: "reserve below zero", solution: Solution{SeniorRedeem: dec("1000.5")}, want: ErrReserveNegative},
		{name: "reserve above max", solution: Solution{JuniorSupply: dec("200"), SeniorSupply: dec("800.1")}, want: ErrMaxReserve},
		{name: "junior redeem draining reserve", solution: Solution{JuniorRedeem: dec("1000")}},
		{name: "junior ratio above max", solution: Solution{SeniorRedeem: dec("1000"), JuniorSupply: dec("1001")}, want: ErrMaxJuniorRatio},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckFeasible(pool, orders, tc.solution)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected feasible, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCheckFeasibleMinJuniorRatio(t *testing.T) {
	pool := healthyPool()
	pool.Reserve = dec("3000")
	pool.NetAssetValue = dec("8000")
	pool.MaxReserve = dec("5000")
	orders := OrderState{JuniorRedeem: dec("2500")}
	// junior 3000 of 11000; redeeming 2500 leaves 500 of 8500.
	if err := CheckFeasible(pool, orders, Solution{JuniorRedeem: dec("2500")}); !errors.Is(err, ErrMinJuniorRatio) {
		t.Fatalf("expected ErrMinJuniorRatio, got %v", err)
	}
}

func TestUnhealthyPoolAcceptsImprovement(t *testing.T) {
	pool := scenarioPool()
	if Healthy(pool) {
		t.Fatalf("scenario pool should start above the max junior ratio")
	}
	orders := OrderState{SeniorSupply: dec("500"), JuniorSupply: dec("500")}
	if err := CheckFeasible(pool, orders, Solution{SeniorSupply: dec("500")}); err != nil {
		t.Fatalf("senior supply lowers the junior ratio and should be accepted: %v", err)
	}
	if err := CheckFeasible(pool, orders, Solution{JuniorSupply: dec("500")}); !errors.Is(err, ErrMaxJuniorRatio) {
		t.Fatalf("junior supply worsens the ratio, got %v", err)
	}
}

func TestInvalidPoolRejected(t *testing.T) {
	pool := healthyPool()
	pool.Reserve = dec("-1")
	if err := CheckFeasible(pool, OrderState{}, ZeroSolution()); !errors.Is(err, ErrInvalidPool) {
		t.Fatalf("expected ErrInvalidPool, got %v", err)
	}
}

func TestProjectionJuniorRatio(t *testing.T) {
	p := Project(healthyPool(), ZeroSolution())
	ratio, ok := p.JuniorRatio()
	if !ok || !ratio.Equal(dec("0.2")) {
		t.Fatalf("expected ratio 0.2, got %s (%v)", ratio, ok)
	}
	empty := Project(PoolState{}, ZeroSolution())
	if _, ok := empty.JuniorRatio(); ok {
		t.Fatalf("empty pool has no ratio")
	}
}
