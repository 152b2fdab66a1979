package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetryConfig keeps sleeps negligible so tests stay quick.
func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialBackoff:  time.Microsecond,
		MaxBackoff:      time.Millisecond,
		Multiplier:      2.0,
		RateLimitWait:   time.Microsecond,
		RateLimitJitter: 0,
		Label:           "test",
	}
}

func TestDoVal_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 1, calls)
}

func TestDoVal_TerminalStopsImmediately(t *testing.T) {
	calls := 0
	start := time.Now()
	cfg := fastRetryConfig(5)
	cfg.InitialBackoff = 10 * time.Second // would be visible if slept

	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, &TerminalError{Err: errors.New("invalid request")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, IsExhausted(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoVal_TransientRetriesUntilExhausted(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("boom"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsExhausted(err))

	var ee *ExhaustedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.Attempts)
	assert.Equal(t, "test", ee.Label)
}

func TestDoVal_TransientThenSuccess(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("overloaded"), 529)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestDoVal_ZeroMaxAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), RetryConfig{MaxAttempts: 0, InitialBackoff: time.Microsecond}, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("boom"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsExhausted(err))
}

func TestDoVal_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetryConfig(5), func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("boom"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, IsExhausted(err))
}

func TestDoVal_OnRetryReceivesClassification(t *testing.T) {
	var classes []Class
	cfg := fastRetryConfig(3)
	cfg.OnRetry = func(attempt int, class Class, delay time.Duration, err error) {
		classes = append(classes, class)
	}

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &RateLimitError{Err: errors.New("throttled")}
		}
		return 0, NewTransientError(errors.New("boom"), 500)
	})
	require.Error(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, ClassRateLimited, classes[0])
	assert.Equal(t, ClassTransient, classes[1])
}

func TestRateLimitDelay_WithinBand(t *testing.T) {
	cfg := applyDefaults(RetryConfig{})
	require.Equal(t, 15*time.Second, cfg.RateLimitWait)
	require.Equal(t, 3*time.Second, cfg.RateLimitJitter)

	for i := 0; i < 200; i++ {
		d := rateLimitDelay(cfg)
		assert.GreaterOrEqual(t, d, 15*time.Second)
		assert.Less(t, d, 18*time.Second)
	}
}

func TestRateLimitDelay_IndependentOfAttempt(t *testing.T) {
	cfg := applyDefaults(RetryConfig{})
	cfg.RateLimitJitter = 0

	early := delayFor(ClassRateLimited, 0, cfg)
	late := delayFor(ClassRateLimited, 7, cfg)
	assert.Equal(t, early, late)
}

func TestBackoffDelay_GrowsAndCaps(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: -1, // normalized to 0
	})

	assert.Equal(t, 100*time.Millisecond, backoffDelay(0, cfg))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(1, cfg))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(2, cfg))
	assert.Equal(t, time.Second, backoffDelay(5, cfg))
}

func TestBackoffDelay_JitterStaysWithinFraction(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	})

	for i := 0; i < 200; i++ {
		d := backoffDelay(0, cfg)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassTerminal},
		{"plain error", errors.New("boom"), ClassTerminal},
		{"terminal marker", &TerminalError{Err: errors.New("bad auth")}, ClassTerminal},
		{"transient marker", NewTransientError(errors.New("boom"), 503), ClassTransient},
		{"rate limit marker", &RateLimitError{Err: errors.New("throttled")}, ClassRateLimited},
		{"rate limit wins over wrapping", &RateLimitError{Err: NewTransientError(errors.New("x"), 500)}, ClassRateLimited},
		{"connection reset string", errors.New("read tcp: connection reset by peer"), ClassTransient},
		{"overloaded string", errors.New("api error: Overloaded"), ClassTransient},
		{"dns failure string", errors.New("dial tcp: lookup api: no such host"), ClassTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.Equal(t, ClassRateLimited, ClassifyHTTPStatus(429))
	assert.Equal(t, ClassTransient, ClassifyHTTPStatus(408))
	assert.Equal(t, ClassTransient, ClassifyHTTPStatus(500))
	assert.Equal(t, ClassTransient, ClassifyHTTPStatus(529))
	assert.Equal(t, ClassTerminal, ClassifyHTTPStatus(400))
	assert.Equal(t, ClassTerminal, ClassifyHTTPStatus(401))
	assert.Equal(t, ClassTerminal, ClassifyHTTPStatus(200))
}
