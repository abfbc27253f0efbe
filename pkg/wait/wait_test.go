package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil_ImmediateSuccess(t *testing.T) {
	var calls int32
	start := time.Now()

	err := Until(context.Background(), time.Second, 100*time.Millisecond, func(context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestUntil_SucceedsAfterPolling(t *testing.T) {
	var calls int32

	err := Until(context.Background(), 2*time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		return atomic.AddInt32(&calls, 1) >= 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestUntil_Timeout(t *testing.T) {
	start := time.Now()

	err := Until(context.Background(), 120*time.Millisecond, 20*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 120*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Greater(t, te.Attempts, 1)
}

func TestUntil_TimeoutKeepsLastError(t *testing.T) {
	stale := errors.New("stale element")

	err := Until(context.Background(), 50*time.Millisecond, 10*time.Millisecond, func(context.Context) (bool, error) {
		return false, stale
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, stale)
	assert.Contains(t, err.Error(), "stale element")
}

func TestUntil_ErrorThenSuccess(t *testing.T) {
	var calls int32

	err := Until(context.Background(), time.Second, 5*time.Millisecond, func(context.Context) (bool, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return false, errors.New("detached")
		}
		return true, nil
	})

	assert.NoError(t, err)
}

func TestUntil_ZeroTimeoutChecksAtLeastOnce(t *testing.T) {
	var calls int32

	err := Until(context.Background(), 0, 10*time.Millisecond, func(context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return false, nil
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := Until(ctx, 5*time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestUntil_CadenceIsFixed(t *testing.T) {
	var stamps []time.Time

	_ = Until(context.Background(), 200*time.Millisecond, 50*time.Millisecond, func(context.Context) (bool, error) {
		stamps = append(stamps, time.Now())
		return false, nil
	})

	require.GreaterOrEqual(t, len(stamps), 3)
	for i := 1; i < len(stamps)-1; i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 40*time.Millisecond)
	}
}

func TestUntil_BlockingConditionStopsAtTimeout(t *testing.T) {
	start := time.Now()

	err := Until(context.Background(), 100*time.Millisecond, 10*time.Millisecond, func(ctx context.Context) (bool, error) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(1500 * time.Millisecond):
			return false, nil
		}
	})

	elapsed := time.Since(start)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, elapsed, 400*time.Millisecond)
	// the deadline itself is not reported as the condition's failure
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestUntil_ConditionContextCarriesDeadline(t *testing.T) {
	var hasDeadline bool

	err := Until(context.Background(), time.Second, 10*time.Millisecond, func(ctx context.Context) (bool, error) {
		_, hasDeadline = ctx.Deadline()
		return true, nil
	})

	require.NoError(t, err)
	assert.True(t, hasDeadline)
}

func TestSleep(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Second), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, DefaultTimeout, p.Timeout)
	assert.Equal(t, 3*time.Second, p.WithTimeout(3*time.Second).Timeout)
	assert.Equal(t, DefaultTimeout, p.WithTimeout(-1).Timeout)
	assert.Equal(t, DefaultSettle, p.SettleFor(0))
	assert.Equal(t, 5*time.Millisecond, p.SettleFor(5*time.Millisecond))
}
