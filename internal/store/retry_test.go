package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/listenupapp/novelvault/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := store.RetryPolicy{Attempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, p.Delay(1))
	assert.Equal(t, 20*time.Millisecond, p.Delay(2))
	assert.Equal(t, 40*time.Millisecond, p.Delay(3))
	assert.Equal(t, 50*time.Millisecond, p.Delay(4), "capped")
	assert.Equal(t, 50*time.Millisecond, p.Delay(80), "overflow falls back to cap")
}

func TestRetrier_BusyThenSuccess(t *testing.T) {
	base := 10 * time.Millisecond
	r := store.NewRetrier(store.RetryPolicy{Attempts: 5, BaseDelay: base, MaxDelay: time.Second}, quietLogger())

	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	r.OnRetry = func(_ string, _ int, d time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, d)
		assert.ErrorIs(t, err, store.ErrBusy)
	}

	calls := 0
	start := time.Now()
	err := r.Do(context.Background(), "upsert work", func(context.Context) error {
		calls++
		if calls <= 3 {
			return store.ErrBusy.WithCause(errors.New("SQLITE_BUSY"))
		}
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{base, 2 * base, 4 * base}, delays)

	// 10 + 20 + 40 ms of backoff, with generous headroom for slow machines.
	assert.GreaterOrEqual(t, elapsed, 7*base)
	assert.Less(t, elapsed, 7*base+500*time.Millisecond)
}

func TestRetrier_NonBusyNotRetried(t *testing.T) {
	r := store.NewRetrier(store.RetryPolicy{Attempts: 5, BaseDelay: time.Millisecond}, quietLogger())

	calls := 0
	boom := errors.New("constraint failed")
	err := r.Do(context.Background(), "record download", func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Exhausted(t *testing.T) {
	r := store.NewRetrier(store.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}, quietLogger())

	var attempts []int
	r.OnRetry = func(_ string, attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}

	calls := 0
	err := r.Do(context.Background(), "toggle bookmark", func(context.Context) error {
		calls++
		return store.ErrBusy
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrBusy)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, attempts, "no backoff follows the last attempt")
}

func TestRetrier_AlreadyCancelled(t *testing.T) {
	r := store.NewRetrier(store.DefaultRetryPolicy(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := r.Do(ctx, "record download", func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetrier_ContextCancelledDuringBackoff(t *testing.T) {
	r := store.NewRetrier(store.RetryPolicy{Attempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Do(ctx, "save progress", func(context.Context) error {
		return store.ErrBusy
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, store.ErrBusy)
}

func TestRetryValue(t *testing.T) {
	r := store.NewRetrier(store.RetryPolicy{BaseDelay: time.Millisecond}, quietLogger())
	assert.Equal(t, 5, r.Policy().Attempts)

	calls := 0
	got, err := store.RetryValue(context.Background(), r, "toggle", func(context.Context) (bool, error) {
		calls++
		if calls == 1 {
			return false, store.ErrBusy
		}
		return true, nil
	})

	require.NoError(t, err)
	assert.True(t, got)
}
