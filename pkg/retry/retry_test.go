package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastRetrier(attempts int, opts ...Option) *Retrier {
	return FromSettings(attempts, time.Millisecond, 5*time.Millisecond, opts...)
}

func TestRetrier_SucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_ReturnsUnmarkedErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := fastRetrier(2).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	})

	assert.Equal(t, errFlaky, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 2, calls)
}

func TestRetrier_MarkSurvivesWrapping(t *testing.T) {
	calls := 0
	err := fastRetrier(2).Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("project: %w", Retryable(errFlaky))
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestRetrier_DoesNotRetryUnmarkedErrors(t *testing.T) {
	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_OnRetry(t *testing.T) {
	var retried []int
	err := fastRetrier(3,
		WithJitter(0),
		WithOnRetry(func(attempt int, err error, _ time.Duration) {
			assert.Equal(t, errFlaky, err)
			retried = append(retried, attempt)
		}),
	).Do(context.Background(), func(context.Context) error {
		return Retryable(errFlaky)
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetrier_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastRetrier(3).Do(ctx, func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetrier_DelayBackoff(t *testing.T) {
	r := New(WithInitialDelay(10*time.Millisecond), WithMaxDelay(35*time.Millisecond), WithJitter(0))

	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 35*time.Millisecond, r.delay(3))
	assert.Equal(t, 35*time.Millisecond, r.delay(30))
}

func TestRetrier_DelayJitterBounds(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithJitter(0.5))

	for i := 0; i < 50; i++ {
		d := r.delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestProjectionRetrier(t *testing.T) {
	assert.Equal(t, 3, ProjectionRetrier().Attempts())
	assert.Equal(t, 3, FromSettings(0, 0, 0).Attempts())
	assert.Nil(t, Retryable(nil))
}
