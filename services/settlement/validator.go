package settlement

import (
	"context"
	"fmt"

	"trancheclear/native/tranche"
	"trancheclear/services/settlement/ledger"
)

// Validator re-checks a candidate solution against freshly read ledger
// state before it is submitted.
type Validator struct {
	pools   ledger.PoolStateReader
	orders  ledger.OrderAggregator
	retrier *Retrier
}

// NewValidator builds a validator reading through the retrier.
func NewValidator(pools ledger.PoolStateReader, orders ledger.OrderAggregator, retrier *Retrier) *Validator {
	return &Validator{pools: pools, orders: orders, retrier: retrier}
}

// Validate returns the status the solution has against current ledger state.
// A status that differs from the one the solver assigned is ErrStaleState.
func (v *Validator) Validate(ctx context.Context, solution tranche.Solution) (tranche.SolutionStatus, error) {
	pool, err := Read(ctx, v.retrier, "read_pool", v.pools.ReadPoolState)
	if err != nil {
		return tranche.StatusInfeasible, err
	}
	orders, err := Read(ctx, v.retrier, "read_orders", v.orders.ReadOrderState)
	if err != nil {
		return tranche.StatusInfeasible, err
	}
	status := tranche.StatusFeasibleNonZero
	if solution.IsZero() {
		status = tranche.StatusFeasibleZero
	}
	if err := tranche.CheckFeasible(pool, orders, solution); err != nil {
		return tranche.StatusInfeasible, fmt.Errorf("%w: %w", ErrStaleState, err)
	}
	if status != solution.Status {
		return status, fmt.Errorf("%w: solver reported %s, ledger state gives %s", ErrStaleState, solution.Status, status)
	}
	return status, nil
}
