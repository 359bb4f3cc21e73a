package settlement

import (
	"context"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"trancheclear/native/tranche"
	"trancheclear/services/settlement/ledger"
)

func TestValidatorAcceptsFreshSolution(t *testing.T) {
	mem := newMemoryLedger()
	mem.AddOrders(tranche.OrderState{SeniorSupply: dec("2000")})
	v := NewValidator(mem, mem, NewRetrier("validator", fastPolicy(), nil))

	status, err := v.Validate(context.Background(), tranche.Solution{SeniorSupply: dec("1000"), Status: tranche.StatusFeasibleNonZero})
	require.NoError(t, err)
	require.Equal(t, tranche.StatusFeasibleNonZero, status)

	status, err = v.Validate(context.Background(), tranche.ZeroSolution())
	require.NoError(t, err)
	require.Equal(t, tranche.StatusFeasibleZero, status)
}

func TestValidatorDetectsMovedPool(t *testing.T) {
	mem := newMemoryLedger()
	mem.AddOrders(tranche.OrderState{SeniorSupply: dec("2000")})
	v := NewValidator(mem, mem, NewRetrier("validator", fastPolicy(), nil))
	pool := healthyPool()
	pool.Reserve = dec("1500")
	mem.SetPool(pool)

	status, err := v.Validate(context.Background(), tranche.Solution{SeniorSupply: dec("1000"), Status: tranche.StatusFeasibleNonZero})
	require.ErrorIs(t, err, ErrStaleState)
	require.ErrorIs(t, err, tranche.ErrMaxReserve)
	require.Equal(t, tranche.StatusInfeasible, status)
}

func TestValidatorFlagsStatusDisagreement(t *testing.T) {
	mem := newMemoryLedger()
	v := NewValidator(mem, mem, NewRetrier("validator", fastPolicy(), nil))
	_, err := v.Validate(context.Background(), tranche.Solution{Status: tranche.StatusFeasibleNonZero})
	require.ErrorIs(t, err, ErrStaleState)
}

func TestValidatorSurfacesLedgerOutage(t *testing.T) {
	mem := newMemoryLedger()
	mem.Inject(ledger.OpReadOrders, syscall.ECONNREFUSED, syscall.ECONNREFUSED, syscall.ECONNREFUSED)
	v := NewValidator(mem, mem, NewRetrier("validator", fastPolicy(), nil))
	_, err := v.Validate(context.Background(), tranche.ZeroSolution())
	require.ErrorIs(t, err, ErrLedgerUnavailable)
}
