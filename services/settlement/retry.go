package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"trancheclear/services/settlement/ledger"
)

const rateLimitedCode = -32005

// RetryPolicy bounds how transient ledger faults are retried.
type RetryPolicy struct {
	Attempts      int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	CallTimeout   time.Duration
	RatePerSecond float64
	Burst         int
}

// DefaultRetryPolicy mirrors the shipped configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:      5,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		CallTimeout:   20 * time.Second,
		RatePerSecond: 5,
		Burst:         5,
	}
}

// Retrier executes ledger calls for one pool under the retry policy and a
// per-pool rate limit.
type Retrier struct {
	pool    string
	policy  RetryPolicy
	limiter *rate.Limiter
	metrics *Metrics
	sleep   func(context.Context, time.Duration) error
}

// NewRetrier builds a retrier. A non-positive rate disables limiting.
func NewRetrier(pool string, policy RetryPolicy, metrics *Metrics) *Retrier {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if policy.RatePerSecond > 0 {
		burst := policy.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(policy.RatePerSecond), burst)
	}
	return &Retrier{pool: pool, policy: policy, limiter: limiter, metrics: metrics, sleep: sleepContext}
}

// Read runs a ledger read. Each attempt is bounded by the call timeout.
func (r *Retrier) Read(ctx context.Context, op string, fn func(context.Context) error) error {
	return r.do(ctx, op, r.policy.CallTimeout, fn)
}

// Write runs a ledger write. Writes wait for confirmation, which the ledger
// bounds itself, so no per-call timeout is applied. A broadcast transaction
// whose outcome is unknown is never re-sent.
func (r *Retrier) Write(ctx context.Context, op string, fn func(context.Context) error) error {
	return r.do(ctx, op, 0, fn)
}

func (r *Retrier) do(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	delay := r.policy.BaseDelay
	var last error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		last = r.attempt(ctx, timeout, fn)
		if last == nil {
			r.metrics.ObserveLedgerCall(r.pool, op, time.Since(start), nil)
			return nil
		}
		if ctx.Err() != nil {
			r.metrics.ObserveLedgerCall(r.pool, op, time.Since(start), last)
			return last
		}
		if !IsTransient(last) {
			r.metrics.ObserveLedgerCall(r.pool, op, time.Since(start), last)
			return last
		}
		if attempt == r.policy.Attempts {
			break
		}
		r.metrics.RecordRetry(r.pool, op)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		delay = nextRetryDelay(delay, r.policy.BaseDelay, r.policy.MaxDelay)
	}
	r.metrics.ObserveLedgerCall(r.pool, op, time.Since(start), last)
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrLedgerUnavailable, op, r.policy.Attempts, last)
}

func (r *Retrier) attempt(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

// Read is a typed convenience around Retrier.Read.
func Read[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Read(ctx, op, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		out = value
		return nil
	})
	return out, err
}

func nextRetryDelay(current, base, max time.Duration) time.Duration {
	next := current * 2
	if next < base {
		next = base
	}
	if next > max {
		return max
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsTransient reports whether a ledger error is worth retrying. Rejections,
// reverts and unconfirmed broadcasts are definitive.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var revert *ledger.RevertError
	var pending *ledger.PendingError
	switch {
	case errors.As(err, &revert), errors.As(err, &pending):
		return false
	case errors.Is(err, ledger.ErrReverted), errors.Is(err, ledger.ErrNotConfigured):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == 429 {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rateLimitedCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection reset", "connection refused", "too many requests", "rate limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
