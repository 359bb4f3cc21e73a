package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"trancheclear/core/epoch"
	"trancheclear/native/tranche"
)

// Operation names used for fault injection and call accounting.
const (
	OpReadPool   = "read_pool"
	OpReadOrders = "read_orders"
	OpReadEpoch  = "read_epoch"
	OpClose      = "close"
	OpSubmit     = "submit"
	OpExecute    = "execute"
	OpAdmin      = "admin"
)

// Memory is an in-process ledger that enforces the epoch protocol the same
// way the on-chain coordinator does. It backs dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	now     time.Time
	pool    tranche.PoolState
	orders  tranche.OrderState
	status  epoch.Status
	weights tranche.Weights
	best    *tranche.Solution
	block   uint64
	faults  map[string][]error
	hooks   map[string][]func(*Memory)
	calls   map[string]int
}

// NewMemory creates a ledger whose first epoch was closed at start.
func NewMemory(pool tranche.PoolState, cfg epoch.Config, weights tranche.Weights, start time.Time) *Memory {
	return &Memory{
		now:     start,
		pool:    pool,
		weights: weights,
		status: epoch.Status{
			EpochID:          1,
			CurrentEpoch:     1,
			LastEpochClosed:  start,
			MinimumEpochTime: cfg.MinimumEpochTime,
			ChallengeTime:    cfg.MinimumChallengeTime,
		},
		faults: make(map[string][]error),
		hooks:  make(map[string][]func(*Memory)),
		calls:  make(map[string]int),
	}
}

// Advance moves ledger block time forward.
func (m *Memory) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	m.block++
}

// Now returns the current ledger block time.
func (m *Memory) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetPool replaces the pool state, simulating activity by other actors.
func (m *Memory) SetPool(pool tranche.PoolState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool = pool
}

// AddOrders accumulates new requests into the open epoch.
func (m *Memory) AddOrders(o tranche.OrderState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = tranche.OrderState{
		SeniorRedeem: m.orders.SeniorRedeem.Add(o.SeniorRedeem),
		JuniorRedeem: m.orders.JuniorRedeem.Add(o.JuniorRedeem),
		JuniorSupply: m.orders.JuniorSupply.Add(o.JuniorSupply),
		SeniorSupply: m.orders.SeniorSupply.Add(o.SeniorSupply),
	}
}

// Inject queues errors returned by the next calls of the operation.
func (m *Memory) Inject(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], errs...)
}

// OnNext runs fn once before the next call of the operation.
func (m *Memory) OnNext(op string, fn func(*Memory)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[op] = append(m.hooks[op], fn)
}

// Calls reports how many times the operation was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Best returns the currently accepted submission, if any.
func (m *Memory) Best() (tranche.Solution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.best == nil {
		return tranche.Solution{}, false
	}
	return *m.best, true
}

// begin runs hooks, counts the call and pops an injected fault. It returns
// with the lock held when err is nil.
func (m *Memory) begin(op string) error {
	m.mu.Lock()
	hooks := m.hooks[op]
	delete(m.hooks, op)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn(m)
	}
	m.mu.Lock()
	m.calls[op]++
	if queued := m.faults[op]; len(queued) > 0 {
		err := queued[0]
		m.faults[op] = queued[1:]
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) ReadPoolState(ctx context.Context) (tranche.PoolState, error) {
	if err := ctx.Err(); err != nil {
		return tranche.PoolState{}, err
	}
	if err := m.begin(OpReadPool); err != nil {
		return tranche.PoolState{}, err
	}
	defer m.mu.Unlock()
	return m.pool, nil
}

func (m *Memory) ReadOrderState(ctx context.Context) (tranche.OrderState, error) {
	if err := ctx.Err(); err != nil {
		return tranche.OrderState{}, err
	}
	if err := m.begin(OpReadOrders); err != nil {
		return tranche.OrderState{}, err
	}
	defer m.mu.Unlock()
	return m.orders, nil
}

func (m *Memory) ReadEpochStatus(ctx context.Context) (epoch.Status, error) {
	if err := ctx.Err(); err != nil {
		return epoch.Status{}, err
	}
	if err := m.begin(OpReadEpoch); err != nil {
		return epoch.Status{}, err
	}
	defer m.mu.Unlock()
	status := m.status
	status.BlockTime = m.now
	return status, nil
}

func (m *Memory) CloseEpoch(ctx context.Context) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}
	if err := m.begin(OpClose); err != nil {
		return Confirmation{}, err
	}
	defer m.mu.Unlock()
	if err := epoch.Allowed(m.phaseLocked(), epoch.ActionClose); err != nil {
		return Confirmation{}, errors.Join(ErrReverted, err)
	}
	m.status.LastEpochClosed = m.now
	m.status.CurrentEpoch++
	full := tranche.Solution{
		SeniorRedeem: m.orders.SeniorRedeem,
		JuniorRedeem: m.orders.JuniorRedeem,
		JuniorSupply: m.orders.JuniorSupply,
		SeniorSupply: m.orders.SeniorSupply,
	}
	if tranche.IsFeasible(m.pool, m.orders, full) {
		m.executeLocked(full)
	} else {
		m.status.SubmissionPeriod = true
	}
	return m.confirmLocked(OpClose), nil
}

func (m *Memory) SubmitSolution(ctx context.Context, solution tranche.Solution) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}
	if err := m.begin(OpSubmit); err != nil {
		return Confirmation{}, err
	}
	defer m.mu.Unlock()
	if err := epoch.Allowed(m.phaseLocked(), epoch.ActionSubmit); err != nil {
		return Confirmation{}, errors.Join(ErrReverted, err)
	}
	if code := m.validateLocked(solution); code != CodeSuccess {
		return Confirmation{}, NewRevertError(code)
	}
	if m.best != nil && !solution.Score(m.weights).GreaterThan(m.best.Score(m.weights)) {
		return Confirmation{}, NewRevertError(CodeNotNewBest)
	}
	accepted := solution
	m.best = &accepted
	if m.status.MinChallengePeriodEnd.IsZero() {
		m.status.MinChallengePeriodEnd = m.now.Add(m.status.ChallengeTime)
	}
	return m.confirmLocked(OpSubmit), nil
}

func (m *Memory) ExecuteEpoch(ctx context.Context) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}
	if err := m.begin(OpExecute); err != nil {
		return Confirmation{}, err
	}
	defer m.mu.Unlock()
	if err := epoch.Allowed(m.phaseLocked(), epoch.ActionExecute); err != nil {
		return Confirmation{}, errors.Join(ErrReverted, err)
	}
	solution := tranche.ZeroSolution()
	if m.best != nil {
		solution = *m.best
	}
	if m.validateLocked(solution) != CodeSuccess {
		// state moved since submission; settle nothing rather than break bounds
		solution = tranche.ZeroSolution()
	}
	m.executeLocked(solution)
	return m.confirmLocked(OpExecute), nil
}

func (m *Memory) SetMinimumEpochTime(ctx context.Context, d time.Duration) (Confirmation, error) {
	return m.file(ctx, func() { m.status.MinimumEpochTime = d }, epoch.ValidateEpochTime(d))
}

func (m *Memory) SetMinimumChallengeTime(ctx context.Context, d time.Duration) (Confirmation, error) {
	return m.file(ctx, func() { m.status.ChallengeTime = d }, epoch.ValidateChallengeTime(d))
}

func (m *Memory) file(ctx context.Context, apply func(), invalid error) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}
	if err := m.begin(OpAdmin); err != nil {
		return Confirmation{}, err
	}
	defer m.mu.Unlock()
	if invalid != nil {
		return Confirmation{}, errors.Join(ErrReverted, invalid)
	}
	apply()
	return m.confirmLocked(OpAdmin), nil
}

func (m *Memory) phaseLocked() epoch.Phase {
	status := m.status
	status.BlockTime = m.now
	return epoch.Derive(status)
}

func (m *Memory) validateLocked(solution tranche.Solution) int64 {
	err := tranche.CheckFeasible(m.pool, m.orders, solution)
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, tranche.ErrOverFulfillment), errors.Is(err, tranche.ErrNegativeFulfillment):
		return CodeMaxOrder
	case errors.Is(err, tranche.ErrReserveNegative):
		return CodeCurrencyAvailable
	case errors.Is(err, tranche.ErrMaxReserve):
		return CodeMaxReserve
	case errors.Is(err, tranche.ErrMinJuniorRatio):
		return CodeMaxSeniorRatio
	case errors.Is(err, tranche.ErrMaxJuniorRatio):
		return CodeMinSeniorRatio
	default:
		return CodePoolClosing
	}
}

func (m *Memory) executeLocked(solution tranche.Solution) {
	projected := tranche.Project(m.pool, solution)
	m.pool.Reserve = projected.Reserve
	m.pool.SeniorAsset = projected.SeniorAsset
	m.orders = tranche.OrderState{}
	m.best = nil
	m.status.LastEpochExecuted++
	m.status.EpochID = m.status.LastEpochExecuted + 1
	m.status.SubmissionPeriod = false
	m.status.MinChallengePeriodEnd = time.Time{}
}

func (m *Memory) confirmLocked(op string) Confirmation {
	m.block++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], m.block)
	return Confirmation{
		TxHash:      common.BytesToHash(gethcrypto.Keccak256([]byte(op), seed[:])),
		BlockNumber: m.block,
		BlockTime:   m.now,
	}
}
