package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickRetry(attempts int) RetryConfig {
	return RetryConfig{
		Attempts:  attempts,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Jitter:    -1, // clamped to 0
	}
}

func TestDoValRecoversFromTransientFailures(t *testing.T) {
	calls := 0
	body, err := DoVal(context.Background(), quickRetry(3), func(context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, NewTransientError(eris.New("http 503 from data.sec.gov"), 503)
		}
		return []byte(`{"filings":[]}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"filings":[]}`), body)
	assert.Equal(t, 3, calls)
}

func TestDoValStopsOnPermanentError(t *testing.T) {
	permanent := eris.New("extractor: unprocessable document")
	calls := 0
	_, err := DoVal(context.Background(), quickRetry(5), func(context.Context) (string, error) {
		calls++
		return "", permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoValExhaustsAttemptBudget(t *testing.T) {
	calls := 0
	retries := 0
	cfg := quickRetry(3)
	cfg.OnRetry = func(attempt int, err error) { retries++ }

	_, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(eris.New("i/o timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries, "no retry notification after the final attempt")
}

func TestDoValHonorsCancellation(t *testing.T) {
	cfg := quickRetry(10)
	cfg.BaseDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := DoVal(ctx, cfg, func(context.Context) (int, error) {
			calls++
			return 0, NewTransientError(eris.New("tls handshake timeout"), 0)
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls, "cancellation during backoff must not retry")
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestDoCustomRetryablePredicate(t *testing.T) {
	sentinel := eris.New("watermark moved during sweep")
	cfg := quickRetry(3)
	cfg.Retryable = func(err error) bool { return eris.Is(err, sentinel) }

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDelayGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
		Factor:    2.0,
	}.withDefaults()

	assert.Equal(t, 100*time.Millisecond, cfg.delay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.delay(1))
	assert.Equal(t, 800*time.Millisecond, cfg.delay(3))
	assert.Equal(t, time.Second, cfg.delay(4))
	assert.Equal(t, time.Second, cfg.delay(20))
}

func TestDelayJitterBounds(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, Jitter: 0.25}.withDefaults()
	for i := 0; i < 50; i++ {
		d := cfg.delay(0)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 200, 10_000, 3.0, 0.1)
	assert.Equal(t, 5, cfg.Attempts)
	assert.Equal(t, 200*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, 3.0, cfg.Factor)
	assert.Equal(t, 0.1, cfg.Jitter)

	// Negative jitter means keep the default.
	cfg = FromRetryConfig(0, 0, 0, 0, -1)
	assert.Equal(t, DefaultRetryConfig(), cfg)
}
