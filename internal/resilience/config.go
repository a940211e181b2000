package resilience

import "time"

// FromRetryConfig builds a RetryConfig from flat settings, falling back
// to the defaults for any non-positive value. A negative jitterFraction
// keeps the default jitter.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.Attempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.BaseDelay = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxDelay = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Factor = multiplier
	}
	if jitterFraction >= 0 {
		cfg.Jitter = jitterFraction
	}
	return cfg
}

// FromCircuitConfig builds a BreakerConfig from flat settings, falling
// back to the defaults for any non-positive value.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if failureThreshold > 0 {
		cfg.Threshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.Cooldown = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
