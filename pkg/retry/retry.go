// Package retry повторяет доставку проекций с экспоненциальной задержкой и джиттером.
//
// Повторяются только ошибки, помеченные через Retryable: всё остальное
// считается постоянной ошибкой и возвращается сразу.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// retryableError marks an error as transient.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient. Retryable(nil) is nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err (or anything it wraps) was marked Retryable.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// Config holds the backoff policy.
type Config struct {
	// MaxAttempts includes the first attempt. Default: 3
	MaxAttempts int

	// InitialDelay before the second attempt, doubled after each retry. Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps a single wait. Default: 30s
	MaxDelay time.Duration

	// Jitter spreads each wait by ±Jitter of its length (0..1). Default: 0.1
	Jitter float64

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option настраивает Config.
type Option func(*Config)

// WithMaxAttempts sets the attempt cap. Non-positive values are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the first wait. Non-positive values are ignored.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay caps a single wait. Non-positive values are ignored.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithJitter sets the jitter fraction, 0 disables it.
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.Jitter = j
		}
	}
}

// WithOnRetry sets the callback invoked before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}

// Retrier runs an operation under a backoff policy. Safe for concurrent use.
type Retrier struct {
	config Config
}

// New creates a Retrier.
func New(opts ...Option) *Retrier {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Jitter:       0.1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retrier{config: cfg}
}

// FromSettings builds a Retrier from plain config values, ignoring zero values.
func FromSettings(maxAttempts int, initialDelay, maxDelay time.Duration, extra ...Option) *Retrier {
	opts := append([]Option{
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(initialDelay),
		WithMaxDelay(maxDelay),
	}, extra...)
	return New(opts...)
}

// ProjectionRetrier is the default policy for projection sinks:
// few quick attempts against local infrastructure.
func ProjectionRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0.05),
	)
}

// Attempts returns the attempt cap.
func (r *Retrier) Attempts() int {
	return r.config.MaxAttempts
}

// Do runs op until it succeeds, returns an unmarked error, runs out of
// attempts or ctx is done. The returned error never carries the Retryable mark.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var marked *retryableError
		if !errors.As(err, &marked) {
			return err
		}
		lastErr = marked.err

		if attempt >= r.config.MaxAttempts {
			return lastErr
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

// delay returns InitialDelay * 2^(attempt-1), capped and jittered.
func (r *Retrier) delay(attempt int) time.Duration {
	d := r.config.InitialDelay
	for i := 1; i < attempt && d < r.config.MaxDelay; i++ {
		d *= 2
	}
	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}

	if r.config.Jitter > 0 {
		spread := float64(d) * r.config.Jitter
		d += time.Duration(spread * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}
