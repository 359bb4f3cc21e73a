package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trancheclear/core/epoch"
	"trancheclear/native/tranche"
	"trancheclear/services/settlement/ledger"
	"trancheclear/storage"
	"trancheclear/storage/journal"
)

// Outcome summarises what one coordinator pass did.
type Outcome string

const (
	OutcomeWaiting         Outcome = "waiting"
	OutcomeClosed          Outcome = "closed"
	OutcomeExecutedAtClose Outcome = "executed_at_close"
	OutcomeSubmitted       Outcome = "submitted"
	OutcomeReplaced        Outcome = "replaced"
	OutcomeRejected        Outcome = "rejected"
	OutcomeExecuted        Outcome = "executed"
	OutcomePending         Outcome = "pending"
	OutcomePaused          Outcome = "paused"
	OutcomeHalted          Outcome = "halted"
	OutcomeFailed          Outcome = "failed"
)

// AttemptRecorder persists ledger write attempts.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt journal.Attempt) error
}

// Coordinator drives one pool through close, solve, validate, submit and
// execute. It is sequential: Step must not be called concurrently.
type Coordinator struct {
	poolID       string
	ledger       ledger.Ledger
	solver       *tranche.Solver
	weights      tranche.Weights
	retrier      *Retrier
	validator    *Validator
	metrics      *Metrics
	journal      AttemptRecorder
	checkpoints  *storage.Checkpoints
	rates        *tranche.RateCache
	logger       *slog.Logger
	tracer       trace.Tracer
	pollInterval time.Duration
	maxResolves  int
	replacement  bool
	now          func() time.Time

	mu         sync.Mutex
	tracker    *epoch.Tracker
	paused     bool
	halted     bool
	haltReason string
	epochID    uint64
	phase      epoch.Phase
	observed   bool
	outcome    Outcome
	lastErr    string
	lastStepAt time.Time
	seniorAPR  string
}

// CoordinatorOption customises the coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the structured logger. Pool attributes are added.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithJournal records every ledger write attempt.
func WithJournal(j AttemptRecorder) CoordinatorOption {
	return func(c *Coordinator) { c.journal = j }
}

// WithCheckpoints persists per-epoch submission progress.
func WithCheckpoints(cps *storage.Checkpoints) CoordinatorOption {
	return func(c *Coordinator) { c.checkpoints = cps }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(policy RetryPolicy) CoordinatorOption {
	return func(c *Coordinator) { c.retrier = NewRetrier(c.poolID, policy, c.metrics) }
}

// WithRetrier supplies a preconfigured retrier.
func WithRetrier(r *Retrier) CoordinatorOption {
	return func(c *Coordinator) { c.retrier = r }
}

// WithPollInterval configures how often Run steps.
func WithPollInterval(interval time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.pollInterval = interval }
}

// WithMaxResolves bounds re-solving after stale validations.
func WithMaxResolves(n int) CoordinatorOption {
	return func(c *Coordinator) { c.maxResolves = n }
}

// WithReplacement toggles the single improved submission during the
// challenge period.
func WithReplacement(enabled bool) CoordinatorOption {
	return func(c *Coordinator) { c.replacement = enabled }
}

// WithCurrencyScale sets the truncation scale used by the solver.
func WithCurrencyScale(scale tranche.Scale) CoordinatorOption {
	return func(c *Coordinator) { c.solver = tranche.NewSolver(scale) }
}

// WithRateCache shares a fee to rate cache between coordinators.
func WithRateCache(cache *tranche.RateCache) CoordinatorOption {
	return func(c *Coordinator) { c.rates = cache }
}

// WithClock sets the function used to stamp local bookkeeping.
func WithClock(clock func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = clock }
}

// NewCoordinator constructs the coordinator for one pool.
func NewCoordinator(poolID string, l ledger.Ledger, weights tranche.Weights, opts ...CoordinatorOption) (*Coordinator, error) {
	if poolID == "" {
		return nil, fmt.Errorf("settlement: pool id required")
	}
	if l == nil {
		return nil, fmt.Errorf("settlement: ledger required")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		poolID:       poolID,
		ledger:       l,
		solver:       tranche.NewSolver(tranche.DefaultCurrencyScale),
		weights:      weights,
		metrics:      NewMetrics(),
		logger:       slog.Default(),
		tracer:       otel.Tracer("settlement/coordinator"),
		pollInterval: 15 * time.Second,
		maxResolves:  3,
		replacement:  true,
		now:          time.Now,
		tracker:      &epoch.Tracker{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retrier == nil {
		c.retrier = NewRetrier(poolID, DefaultRetryPolicy(), c.metrics)
	}
	if c.checkpoints == nil {
		c.checkpoints = storage.NewCheckpoints(storage.NewMemDB())
	}
	if c.rates == nil {
		c.rates = tranche.NewRateCache(tranche.DefaultRatioScale)
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 15 * time.Second
	}
	if c.maxResolves < 0 {
		c.maxResolves = 0
	}
	c.logger = c.logger.With(slog.String("pool", poolID))
	c.validator = NewValidator(l, l, c.retrier)
	return c, nil
}

// PoolID returns the pool the coordinator drives.
func (c *Coordinator) PoolID() string { return c.poolID }

// Ledger returns the ledger the coordinator writes to.
func (c *Coordinator) Ledger() ledger.Ledger { return c.ledger }

// Run steps until the context is cancelled. Errors are logged and counted;
// a halted pool keeps being polled so Resume takes effect.
func (c *Coordinator) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		outcome, err := c.Step(ctx)
		if err != nil && !errors.Is(err, ErrHalted) && ctx.Err() == nil {
			c.logger.Warn("settlement step failed", slog.String("outcome", string(outcome)), slog.Any("error", err))
		}
		timer.Reset(c.pollInterval)
	}
}

// Step performs one pass: read the epoch status, derive the phase and take
// the action the phase permits.
func (c *Coordinator) Step(ctx context.Context) (outcome Outcome, err error) {
	c.mu.Lock()
	paused, halted := c.paused, c.halted
	c.mu.Unlock()
	if paused {
		return c.finish("", OutcomePaused, nil)
	}
	if halted {
		return OutcomeHalted, ErrHalted
	}

	ctx, span := c.tracer.Start(ctx, "settlement.step", trace.WithAttributes(attribute.String("pool", c.poolID)))
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	status, err := c.readStatus(ctx)
	if err != nil {
		return c.finish("", OutcomeFailed, err)
	}
	phase := epoch.Derive(status)
	span.SetAttributes(attribute.Int64("epoch", int64(status.EpochID)), attribute.String("phase", phase.String()))
	if err := c.observe(status.EpochID, phase); err != nil {
		return c.finish(phase.String(), OutcomeHalted, c.halt(err))
	}

	switch phase {
	case epoch.PhaseCanBeClosed:
		outcome, err = c.close(ctx, status)
	case epoch.PhaseInSubmissionPeriod:
		outcome, err = c.submit(ctx, status, false)
	case epoch.PhaseInChallengePeriod:
		outcome, err = c.challenge(ctx, status)
	case epoch.PhaseChallengePeriodEnded:
		outcome, err = c.execute(ctx, status)
	default:
		outcome = OutcomeWaiting
	}
	return c.finish(phase.String(), outcome, err)
}

func (c *Coordinator) finish(phase string, outcome Outcome, err error) (Outcome, error) {
	c.mu.Lock()
	c.outcome = outcome
	c.lastStepAt = c.now()
	c.lastErr = ""
	if err != nil {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()
	c.metrics.RecordStep(c.poolID, phase, string(outcome))
	if err != nil {
		c.metrics.RecordError(c.poolID, errorReason(err))
	}
	return outcome, err
}

func (c *Coordinator) readStatus(ctx context.Context) (epoch.Status, error) {
	return Read(ctx, c.retrier, "read_epoch", c.ledger.ReadEpochStatus)
}

func (c *Coordinator) observe(epochID uint64, phase epoch.Phase) error {
	c.mu.Lock()
	tracker := c.tracker
	c.mu.Unlock()
	if err := tracker.Observe(epochID, phase); err != nil {
		return err
	}
	c.mu.Lock()
	c.epochID, c.phase, c.observed = epochID, phase, true
	c.mu.Unlock()
	c.metrics.RecordEpoch(c.poolID, epochID, int(phase))
	return nil
}

func (c *Coordinator) close(ctx context.Context, status epoch.Status) (Outcome, error) {
	if err := epoch.Allowed(epoch.Derive(status), epoch.ActionClose); err != nil {
		return OutcomeFailed, err
	}
	confirmation, err := c.write(ctx, status, epoch.ActionClose, func(ctx context.Context) (ledger.Confirmation, error) {
		return c.ledger.CloseEpoch(ctx)
	}, nil)
	if err != nil {
		return writeOutcome(err), err
	}
	after, err := c.readStatus(ctx)
	if err != nil {
		return OutcomeClosed, err
	}
	phase := epoch.Derive(after)
	if err := c.observe(after.EpochID, phase); err != nil {
		return OutcomeHalted, c.halt(err)
	}
	if after.LastEpochExecuted > status.LastEpochExecuted {
		c.logger.Info("epoch executed at close",
			slog.Uint64("epoch", status.EpochID),
			slog.String("tx_hash", confirmation.TxHash.Hex()))
		c.clearCheckpoint()
		return OutcomeExecutedAtClose, nil
	}
	c.logger.Info("epoch closed, submission period open",
		slog.Uint64("epoch", status.EpochID),
		slog.String("tx_hash", confirmation.TxHash.Hex()))
	return OutcomeClosed, nil
}

// challenge submits an improved solution at most once per epoch.
func (c *Coordinator) challenge(ctx context.Context, status epoch.Status) (Outcome, error) {
	if !c.replacement {
		return OutcomeWaiting, nil
	}
	cp, err := c.checkpoint(status.EpochID)
	if err != nil {
		return OutcomeFailed, err
	}
	if cp.Replaced {
		return OutcomeWaiting, nil
	}
	return c.submit(ctx, status, true)
}

func (c *Coordinator) submit(ctx context.Context, status epoch.Status, replacement bool) (Outcome, error) {
	if err := epoch.Allowed(epoch.Derive(status), epoch.ActionSubmit); err != nil {
		return OutcomeFailed, err
	}
	cp, err := c.checkpoint(status.EpochID)
	if err != nil {
		return OutcomeFailed, err
	}
	if !replacement && cp.SubmittedScore != "" {
		return OutcomeWaiting, nil
	}
	baseline := decimal.Zero
	if cp.SubmittedScore != "" {
		if baseline, err = decimal.NewFromString(cp.SubmittedScore); err != nil {
			return OutcomeFailed, fmt.Errorf("settlement: checkpoint score: %w", err)
		}
	}

	var lastStale error
	for attempt := 0; attempt <= c.maxResolves; attempt++ {
		solution, err := c.solve(ctx)
		if err != nil {
			if errors.Is(err, ErrInfeasible) {
				return OutcomeHalted, c.halt(err)
			}
			return OutcomeFailed, err
		}
		score := solution.Score(c.weights)
		if replacement && !score.GreaterThan(baseline) {
			return OutcomeWaiting, nil
		}
		if _, err := c.validator.Validate(ctx, solution); err != nil {
			if errors.Is(err, ErrStaleState) {
				lastStale = err
				c.metrics.RecordError(c.poolID, "stale_state")
				c.logger.Info("solution stale, re-solving", slog.Int("attempt", attempt+1), slog.Any("error", err))
				continue
			}
			return OutcomeFailed, err
		}
		_, err = c.write(ctx, status, epoch.ActionSubmit, func(ctx context.Context) (ledger.Confirmation, error) {
			return c.ledger.SubmitSolution(ctx, solution)
		}, &solution)
		var revert *ledger.RevertError
		switch {
		case err == nil:
			if err := c.saveCheckpoint(status.EpochID, score, replacement || cp.Replaced); err != nil {
				c.logger.Warn("persist checkpoint failed", slog.Any("error", err))
			}
			c.logger.Info("solution submitted",
				slog.Uint64("epoch", status.EpochID),
				slog.String("status", solution.Status.String()),
				slog.String("score", score.String()),
				slog.Bool("replacement", replacement))
			if replacement {
				return OutcomeReplaced, nil
			}
			return OutcomeSubmitted, nil
		case errors.As(err, &revert):
			return c.rejected(status, solution, revert, score, replacement, cp)
		default:
			return writeOutcome(err), err
		}
	}
	return OutcomeFailed, fmt.Errorf("%w: gave up after %d re-solves: %w", ErrStaleState, c.maxResolves, lastStale)
}

// rejected handles a status code returned for a submission. Feasibility codes
// mean the pool moved after validation; the next pass re-solves. Unknown
// codes, and feasibility codes against the zero solution, halt the pool.
func (c *Coordinator) rejected(status epoch.Status, solution tranche.Solution, revert *ledger.RevertError, score decimal.Decimal, replacement bool, cp storage.Checkpoint) (Outcome, error) {
	attrs := []any{slog.Uint64("epoch", status.EpochID), slog.Int64("code", revert.Code), slog.String("reason", revert.Reason)}
	switch {
	case !revert.Known():
		c.logger.Error("submission rejected with unrecognised code", attrs...)
		return OutcomeHalted, c.halt(revert)
	case solution.IsZero() && revert.Code != ledger.CodeNotNewBest && revert.Code != ledger.CodePoolClosing:
		c.logger.Error("zero solution rejected by ledger", attrs...)
		return OutcomeHalted, c.halt(fmt.Errorf("%w: %w", ErrZeroRejected, revert))
	case revert.Code == ledger.CodeNotNewBest:
		c.logger.Info("submission does not beat the current best", attrs...)
		if err := c.saveCheckpoint(status.EpochID, maxScore(score, cp.SubmittedScore), true); err != nil {
			c.logger.Warn("persist checkpoint failed", slog.Any("error", err))
		}
		return OutcomeRejected, nil
	case revert.Code == ledger.CodePoolClosing:
		c.logger.Warn("pool closing, submission refused", attrs...)
		return OutcomeRejected, revert
	default:
		c.logger.Warn("submission rejected, pool state moved", attrs...)
		if replacement {
			if err := c.saveCheckpoint(status.EpochID, maxScore(decimal.Zero, cp.SubmittedScore), true); err != nil {
				c.logger.Warn("persist checkpoint failed", slog.Any("error", err))
			}
		}
		return OutcomeRejected, fmt.Errorf("%w: %w", ErrStaleState, revert)
	}
}

func (c *Coordinator) execute(ctx context.Context, status epoch.Status) (Outcome, error) {
	if err := epoch.Allowed(epoch.Derive(status), epoch.ActionExecute); err != nil {
		return OutcomeFailed, err
	}
	confirmation, err := c.write(ctx, status, epoch.ActionExecute, func(ctx context.Context) (ledger.Confirmation, error) {
		return c.ledger.ExecuteEpoch(ctx)
	}, nil)
	if err != nil {
		return writeOutcome(err), err
	}
	c.clearCheckpoint()
	c.logger.Info("epoch executed",
		slog.Uint64("epoch", status.EpochID),
		slog.String("tx_hash", confirmation.TxHash.Hex()),
		slog.Uint64("block", confirmation.BlockNumber))
	after, err := c.readStatus(ctx)
	if err != nil {
		return OutcomeExecuted, err
	}
	if err := c.observe(after.EpochID, epoch.Derive(after)); err != nil {
		return OutcomeHalted, c.halt(err)
	}
	return OutcomeExecuted, nil
}

// solve reads fresh state and runs the solver.
func (c *Coordinator) solve(ctx context.Context) (tranche.Solution, error) {
	ctx, span := c.tracer.Start(ctx, "settlement.solve")
	defer span.End()
	pool, err := Read(ctx, c.retrier, "read_pool", c.ledger.ReadPoolState)
	if err != nil {
		return tranche.Solution{}, err
	}
	orders, err := Read(ctx, c.retrier, "read_orders", c.ledger.ReadOrderState)
	if err != nil {
		return tranche.Solution{}, err
	}
	c.recordRate(pool)
	solution := c.solver.Solve(pool, orders, c.weights)
	c.metrics.RecordSolution(c.poolID, solution.Status.String())
	span.SetAttributes(attribute.String("status", solution.Status.String()))
	if !solution.Status.Feasible() {
		err := fmt.Errorf("%w: reserve %s nav %s senior %s", ErrInfeasible, pool.Reserve, pool.NetAssetValue, pool.SeniorAsset)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return solution, err
	}
	return solution, nil
}

func (c *Coordinator) recordRate(pool tranche.PoolState) {
	if pool.SeniorInterestRate.IsZero() {
		return
	}
	apr := c.rates.InterestRate(pool.SeniorInterestRate)
	c.mu.Lock()
	c.seniorAPR = apr.String()
	c.mu.Unlock()
}

// write runs a ledger write through the retrier and journals the attempt.
func (c *Coordinator) write(ctx context.Context, status epoch.Status, action epoch.Action, fn func(context.Context) (ledger.Confirmation, error), solution *tranche.Solution) (ledger.Confirmation, error) {
	ctx, span := c.tracer.Start(ctx, "settlement."+action.String())
	defer span.End()
	var confirmation ledger.Confirmation
	err := c.retrier.Write(ctx, action.String(), func(ctx context.Context) error {
		var err error
		confirmation, err = fn(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.record(ctx, status, action, confirmation, solution, err)
	return confirmation, err
}

func (c *Coordinator) record(ctx context.Context, status epoch.Status, action epoch.Action, confirmation ledger.Confirmation, solution *tranche.Solution, err error) {
	if c.journal == nil {
		return
	}
	attempt := journal.Attempt{
		PoolID:  c.poolID,
		EpochID: status.EpochID,
		Phase:   epoch.Derive(status).String(),
		Action:  action.String(),
		Outcome: journal.OutcomeConfirmed,
	}
	if solution != nil {
		attempt.SeniorRedeem = solution.SeniorRedeem.String()
		attempt.JuniorRedeem = solution.JuniorRedeem.String()
		attempt.JuniorSupply = solution.JuniorSupply.String()
		attempt.SeniorSupply = solution.SeniorSupply.String()
	}
	var revert *ledger.RevertError
	var pending *ledger.PendingError
	switch {
	case err == nil:
		attempt.TxHash = confirmation.TxHash.Hex()
		attempt.BlockNumber = confirmation.BlockNumber
	case errors.As(err, &revert):
		code := revert.Code
		attempt.Code = &code
		attempt.Outcome = journal.OutcomeRejected
	case errors.As(err, &pending):
		attempt.TxHash = pending.TxHash.Hex()
		attempt.Outcome = journal.OutcomePending
	case errors.Is(err, ledger.ErrReverted):
		attempt.Outcome = journal.OutcomeRejected
	default:
		attempt.Outcome = journal.OutcomeFailed
	}
	if err != nil {
		attempt.Error = err.Error()
	}
	if jerr := c.journal.Record(context.WithoutCancel(ctx), attempt); jerr != nil {
		c.logger.Warn("journal attempt failed", slog.Any("error", jerr))
	}
}

func (c *Coordinator) checkpoint(epochID uint64) (storage.Checkpoint, error) {
	cp, ok, err := c.checkpoints.Load(c.poolID)
	if err != nil {
		return storage.Checkpoint{}, err
	}
	if !ok || cp.EpochID != epochID {
		return storage.Checkpoint{EpochID: epochID}, nil
	}
	return cp, nil
}

func (c *Coordinator) saveCheckpoint(epochID uint64, score decimal.Decimal, replaced bool) error {
	return c.checkpoints.Save(c.poolID, storage.Checkpoint{
		EpochID:        epochID,
		SubmittedScore: score.String(),
		Replaced:       replaced,
		UpdatedAt:      c.now().UTC(),
	})
}

func (c *Coordinator) clearCheckpoint() {
	if err := c.checkpoints.Clear(c.poolID); err != nil {
		c.logger.Warn("clear checkpoint failed", slog.Any("error", err))
	}
}

// halt stops the pool until an operator resumes it.
func (c *Coordinator) halt(cause error) error {
	c.mu.Lock()
	c.halted = true
	c.haltReason = cause.Error()
	c.mu.Unlock()
	c.metrics.SetHalted(c.poolID, true)
	c.logger.Error("pool halted", slog.Any("error", cause))
	return fmt.Errorf("%w: %w", ErrHalted, cause)
}

// Pause stops the coordinator from issuing ledger calls.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	c.metrics.SetPaused(c.poolID, true)
}

// Resume re-enables the coordinator and clears a halt. Phase tracking starts
// over from the next observation.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	wasHalted := c.halted
	c.paused = false
	c.halted = false
	c.haltReason = ""
	c.tracker = &epoch.Tracker{}
	c.mu.Unlock()
	c.metrics.SetPaused(c.poolID, false)
	c.metrics.SetHalted(c.poolID, false)
	if wasHalted {
		c.logger.Info("pool resumed after halt")
	}
}

// SetEpochParams updates the ledger's epoch timing. Nil values are left
// unchanged. Parameters are validated before any ledger call.
func (c *Coordinator) SetEpochParams(ctx context.Context, minimumEpochTime, minimumChallengeTime *time.Duration) ([]ledger.Confirmation, error) {
	if minimumEpochTime != nil {
		if err := epoch.ValidateEpochTime(*minimumEpochTime); err != nil {
			return nil, err
		}
	}
	if minimumChallengeTime != nil {
		if err := epoch.ValidateChallengeTime(*minimumChallengeTime); err != nil {
			return nil, err
		}
	}
	var confirmations []ledger.Confirmation
	if minimumEpochTime != nil {
		var confirmation ledger.Confirmation
		err := c.retrier.Write(ctx, "set_minimum_epoch_time", func(ctx context.Context) (err error) {
			confirmation, err = c.ledger.SetMinimumEpochTime(ctx, *minimumEpochTime)
			return err
		})
		if err != nil {
			return confirmations, err
		}
		confirmations = append(confirmations, confirmation)
	}
	if minimumChallengeTime != nil {
		var confirmation ledger.Confirmation
		err := c.retrier.Write(ctx, "set_minimum_challenge_time", func(ctx context.Context) (err error) {
			confirmation, err = c.ledger.SetMinimumChallengeTime(ctx, *minimumChallengeTime)
			return err
		})
		if err != nil {
			return confirmations, err
		}
		confirmations = append(confirmations, confirmation)
	}
	c.logger.Info("epoch parameters updated", slog.Int("transactions", len(confirmations)))
	return confirmations, nil
}

// Status summarises coordinator state for administrative endpoints.
type Status struct {
	Pool               string            `json:"pool"`
	Paused             bool              `json:"paused"`
	Halted             bool              `json:"halted"`
	HaltReason         string            `json:"halt_reason,omitempty"`
	EpochID            uint64            `json:"epoch_id"`
	Phase              string            `json:"phase,omitempty"`
	LastOutcome        string            `json:"last_outcome,omitempty"`
	LastError          string            `json:"last_error,omitempty"`
	LastStepAt         time.Time         `json:"last_step_at,omitempty"`
	SubmittedScore     string            `json:"submitted_score,omitempty"`
	Replaced           bool              `json:"replaced"`
	SeniorInterestRate string            `json:"senior_interest_rate,omitempty"`
	Recent             []journal.Attempt `json:"recent,omitempty"`
	// LastSubmission is the newest confirmed submission for EpochID.
	LastSubmission *journal.Attempt `json:"last_submission,omitempty"`
}

// Status reports the current coordinator snapshot.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	status := Status{
		Pool:               c.poolID,
		Paused:             c.paused,
		Halted:             c.halted,
		HaltReason:         c.haltReason,
		EpochID:            c.epochID,
		LastOutcome:        string(c.outcome),
		LastError:          c.lastErr,
		LastStepAt:         c.lastStepAt,
		SeniorInterestRate: c.seniorAPR,
	}
	if c.observed {
		status.Phase = c.phase.String()
	}
	epochID := c.epochID
	c.mu.Unlock()
	if cp, ok, err := c.checkpoints.Load(c.poolID); err == nil && ok && cp.EpochID == epochID {
		status.SubmittedScore = cp.SubmittedScore
		status.Replaced = cp.Replaced
	}
	return status
}

func writeOutcome(err error) Outcome {
	var pending *ledger.PendingError
	switch {
	case errors.As(err, &pending):
		return OutcomePending
	case errors.Is(err, ErrHalted):
		return OutcomeHalted
	case errors.Is(err, ledger.ErrReverted):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

func errorReason(err error) string {
	var revert *ledger.RevertError
	var pending *ledger.PendingError
	switch {
	case errors.Is(err, ErrHalted):
		return "halted"
	case errors.Is(err, ErrLedgerUnavailable):
		return "ledger_unavailable"
	case errors.Is(err, ErrStaleState):
		return "stale_state"
	case errors.Is(err, epoch.ErrIllegalTransition):
		return "illegal_transition"
	case errors.As(err, &pending):
		return "pending"
	case errors.As(err, &revert):
		return "rejected"
	case errors.Is(err, ledger.ErrReverted):
		return "reverted"
	default:
		return "other"
	}
}

func maxScore(score decimal.Decimal, stored string) decimal.Decimal {
	previous, err := decimal.NewFromString(stored)
	if err != nil || score.GreaterThan(previous) {
		return score
	}
	return previous
}
