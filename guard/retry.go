package guard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/arbiterlabs/arbiter/core"
	"github.com/arbiterlabs/arbiter/logging"
)

// Default retry tuning.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMultiplier   = 2.0
)

// RetryOptions configures a Retrier.
type RetryOptions struct {
	// MaxAttempts is the total attempt count including the first call.
	MaxAttempts int
	// InitialDelay is the backoff before the second attempt; each further
	// attempt multiplies it by Multiplier.
	InitialDelay time.Duration
	// Multiplier is the exponential backoff factor.
	Multiplier float64
	// Rand supplies jitter and is injectable for tests. Defaults to a
	// time-seeded source.
	Rand *rand.Rand
	// Sleep is injectable for tests. Defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger records retry attempts. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Retrier retries transient failures with exponential backoff and jitter,
// optionally gated by a circuit breaker per attempt.
type Retrier struct {
	opts RetryOptions
}

// NewRetrier creates a Retrier with defaults overridden by optFns.
func NewRetrier(optFns ...func(o *RetryOptions)) *Retrier {
	opts := RetryOptions{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Retrier{opts: opts}
}

// Do runs fn up to MaxAttempts times. When breaker is non-nil it is
// consulted before every attempt and fed every outcome; an open breaker
// abandons the remaining attempts immediately. Only transient failures are
// retried. The error of the final attempt is returned.
func (r *Retrier) Do(ctx context.Context, breaker *Breaker, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := r.opts.InitialDelay

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", core.ErrCancelled, err)
		}
		if breaker != nil {
			if err := breaker.Allow(); err != nil {
				return err
			}
		}

		lastErr = fn(ctx)
		if breaker != nil {
			breaker.Record(lastErr)
		}
		if lastErr == nil {
			return nil
		}
		if !core.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == r.opts.MaxAttempts {
			break
		}

		wait := delay + r.jitter(delay)
		r.opts.Logger.Debug("retrying after transient failure", "attempt", attempt, "delay", wait.String(), "error", lastErr.Error())
		if err := r.opts.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w: %w", core.ErrCancelled, err)
		}
		delay = time.Duration(float64(delay) * r.opts.Multiplier)
	}

	return fmt.Errorf("exhausted %d attempts: %w", r.opts.MaxAttempts, lastErr)
}

// jitter draws a uniform duration in [0, d/2) to spread concurrent retries.
func (r *Retrier) jitter(d time.Duration) time.Duration {
	half := int64(d / 2)
	if half <= 0 {
		return 0
	}
	return time.Duration(r.opts.Rand.Int63n(half))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Permanent reports whether err should not be retried: either it is
// non-transient or the breaker refused it.
func Permanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrCircuitOpen) {
		return true
	}
	return !core.IsTransient(err)
}
