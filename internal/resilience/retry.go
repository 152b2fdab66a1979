package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior for provider calls.
//
// Transient failures back off exponentially. Rate-limited failures instead
// use a single fixed long wait (RateLimitWait plus up to RateLimitJitter of
// random jitter), independent of attempt number: the enclosing request has
// a hard wall-clock deadline, so compounding growth after a throttle signal
// only burns budget that a manual retry would spend better.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 still attempt once. Default: 3.
	MaxAttempts int

	// InitialBackoff is the base delay before the first transient retry.
	// Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the transient backoff. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier scales the transient backoff per attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction adds random jitter as a fraction of the computed
	// transient delay (0.25 = ±25%). Default: 0.25.
	JitterFraction float64

	// RateLimitWait is the fixed wait after a rate-limit signal, tuned to
	// clear typical provider throttle windows. Default: 15s.
	RateLimitWait time.Duration

	// RateLimitJitter is the upper bound of additive jitter on
	// RateLimitWait. Default: 3s.
	RateLimitJitter time.Duration

	// Label identifies the operation in retry logs.
	Label string

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, class Class, delay time.Duration, err error)
}

// DefaultRetryConfig returns the retry configuration for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      30 * time.Second,
		Multiplier:      2.0,
		JitterFraction:  0.25,
		RateLimitWait:   15 * time.Second,
		RateLimitJitter: 3 * time.Second,
	}
}

// DoVal executes fn with retry semantics and preserves the successful value.
//
// Attempt 0 always runs. Terminal errors return immediately with no sleep.
// Transient and rate-limited errors are retried until MaxAttempts is
// exhausted, at which point the last error is returned wrapped in an
// ExhaustedError. Context cancellation stops retries immediately.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}

		class := Classify(lastErr)
		if class == ClassTerminal {
			return zero, lastErr
		}

		// No sleep after the final attempt.
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		delay := delayFor(class, attempt, cfg)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, class, delay, lastErr)
		}
		zap.L().Warn("retrying operation",
			zap.String("operation", cfg.Label),
			zap.Int("attempt", attempt+1),
			zap.String("classification", class.String()),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, &ExhaustedError{Label: cfg.Label, Attempts: cfg.MaxAttempts, Err: lastErr}
}

// Do executes fn with the same semantics as DoVal for value-less operations.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = 15 * time.Second
	}
	if cfg.RateLimitJitter < 0 {
		cfg.RateLimitJitter = 0
	}
	if cfg.Label == "" {
		cfg.Label = "operation"
	}
	return cfg
}

func delayFor(class Class, attempt int, cfg RetryConfig) time.Duration {
	if class == ClassRateLimited {
		return rateLimitDelay(cfg)
	}
	return backoffDelay(attempt, cfg)
}

func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// rateLimitDelay is RateLimitWait plus additive jitter in [0, RateLimitJitter),
// independent of attempt number.
func rateLimitDelay(cfg RetryConfig) time.Duration {
	delay := cfg.RateLimitWait
	if cfg.RateLimitJitter > 0 {
		delay += time.Duration(rand.Float64() * float64(cfg.RateLimitJitter))
	}
	return delay
}
