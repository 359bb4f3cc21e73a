package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"trancheclear/services/settlement/ledger"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

type rpcCodeErr struct{ code int }

func (e rpcCodeErr) Error() string  { return fmt.Sprintf("rpc error %d", e.code) }
func (e rpcCodeErr) ErrorCode() int { return e.code }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", fmt.Errorf("call: %w", timeoutErr{}), true},
		{"reset", fmt.Errorf("call: %w", syscall.ECONNRESET), true},
		{"refused", syscall.ECONNREFUSED, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"http 429", rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}, true},
		{"http 500", rpc.HTTPError{StatusCode: 500, Status: "500 Internal Server Error"}, false},
		{"rpc rate limit", rpcCodeErr{code: -32005}, true},
		{"rpc other", rpcCodeErr{code: -32000}, false},
		{"revert code", ledger.NewRevertError(ledger.CodeMaxReserve), false},
		{"reverted", fmt.Errorf("wrap: %w", ledger.ErrReverted), false},
		{"pending", &ledger.PendingError{TxHash: common.Hash{1}, Err: context.DeadlineExceeded}, false},
		{"not configured", ledger.ErrNotConfigured, false},
		{"string reset", errors.New("read tcp: connection reset by peer"), true},
		{"other", errors.New("invalid argument"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestNextRetryDelay(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	require.Equal(t, 200*time.Millisecond, nextRetryDelay(base, base, max))
	require.Equal(t, base, nextRetryDelay(0, base, max))
	require.Equal(t, max, nextRetryDelay(800*time.Millisecond, base, max))
}

func newRecordingRetrier(policy RetryPolicy) (*Retrier, *[]time.Duration) {
	r := NewRetrier("retry-test", policy, nil)
	var sleeps []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return r, &sleeps
}

func TestRetrierBacksOffOnTransientErrors(t *testing.T) {
	r, sleeps := newRecordingRetrier(RetryPolicy{Attempts: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond})
	calls := 0
	err := r.Read(context.Background(), "read_pool", func(context.Context) error {
		calls++
		if calls < 4 {
			return syscall.ECONNRESET
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, calls)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}, *sleeps)
}

func TestRetrierWrapsExhaustion(t *testing.T) {
	r, _ := newRecordingRetrier(RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond})
	err := r.Read(context.Background(), "read_epoch", func(context.Context) error { return io.EOF })
	require.ErrorIs(t, err, ErrLedgerUnavailable)
	require.ErrorIs(t, err, io.EOF)
	require.Contains(t, err.Error(), "read_epoch after 2 attempts")
}

func TestRetrierNeverRetriesDefinitiveErrors(t *testing.T) {
	r, sleeps := newRecordingRetrier(RetryPolicy{Attempts: 5, BaseDelay: time.Millisecond})
	for _, definitive := range []error{
		ledger.NewRevertError(-6),
		&ledger.PendingError{Err: context.DeadlineExceeded},
		ledger.ErrReverted,
	} {
		calls := 0
		err := r.Write(context.Background(), "submit", func(context.Context) error {
			calls++
			return definitive
		})
		require.ErrorIs(t, err, definitive)
		require.Equal(t, 1, calls)
	}
	require.Empty(t, *sleeps)
}

func TestRetrierAppliesCallTimeout(t *testing.T) {
	r, _ := newRecordingRetrier(RetryPolicy{Attempts: 1, CallTimeout: 5 * time.Millisecond})
	err := r.Read(context.Background(), "read_orders", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrLedgerUnavailable)

	err = r.Write(context.Background(), "close", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestRetrierStopsOnCancelledContext(t *testing.T) {
	r, _ := newRecordingRetrier(RetryPolicy{Attempts: 5, BaseDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Read(ctx, "read_pool", func(context.Context) error {
		calls++
		cancel()
		return syscall.ECONNRESET
	})
	require.ErrorIs(t, err, syscall.ECONNRESET)
	require.Equal(t, 1, calls)
}

func TestRetrierRateLimits(t *testing.T) {
	r := NewRetrier("rate-test", RetryPolicy{Attempts: 1, RatePerSecond: 50, Burst: 1}, nil)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Read(context.Background(), "read_pool", func(context.Context) error { return nil }))
	}
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestTypedRead(t *testing.T) {
	r, _ := newRecordingRetrier(RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond})
	calls := 0
	value, err := Read(context.Background(), r, "read_epoch", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, timeoutErr{}
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, value)
}
