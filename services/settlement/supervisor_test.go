package settlement

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trancheclear/native/tranche"
	"trancheclear/services/settlement/ledger"
)

func TestSupervisorRunsPoolsIndependently(t *testing.T) {
	first := newMemoryLedger()
	first.AddOrders(tranche.OrderState{SeniorSupply: dec("500")})
	first.Advance(24 * time.Hour)
	second := newMemoryLedger()
	second.Inject(ledger.OpReadEpoch, errUnavailableForever()...)

	a := newTestCoordinator(t, "pool-b", first)
	b := newTestCoordinator(t, "pool-a", second)
	sup, err := NewSupervisor(quietLogger(), a, b)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.Status().EpochID == 2
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	statuses := sup.Statuses()
	require.Len(t, statuses, 2)
	require.Equal(t, "pool-a", statuses[0].Pool)
	require.Equal(t, "pool-b", statuses[1].Pool)
	require.NotEmpty(t, statuses[0].LastError)
}

func TestSupervisorRejectsDuplicatePools(t *testing.T) {
	mem := newMemoryLedger()
	a := newTestCoordinator(t, "dup", mem)
	b := newTestCoordinator(t, "dup", mem)
	_, err := NewSupervisor(nil, a, b)
	require.ErrorContains(t, err, "duplicate pool dup")

	_, err = NewSupervisor(nil, a, nil)
	require.Error(t, err)
}

func TestSupervisorPoolLookup(t *testing.T) {
	c := newTestCoordinator(t, "known", newMemoryLedger())
	sup, err := NewSupervisor(nil, c)
	require.NoError(t, err)

	got, err := sup.Pool("known")
	require.NoError(t, err)
	require.Same(t, c, got)

	_, err = sup.Pool("missing")
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func errUnavailableForever() []error {
	errs := make([]error, 100000)
	for i := range errs {
		errs[i] = syscall.ECONNREFUSED
	}
	return errs
}
