package config

import (
	"time"

	"github.com/sells-group/leadscout/internal/resilience"
)

// Policy returns the retry policy for directory calls. Unset fields fall
// back to resilience.DefaultRetryConfig; a zero jitter fraction is kept.
func (r RetryConfig) Policy() resilience.RetryConfig {
	p := resilience.DefaultRetryConfig()
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(r.InitialBackoffMs) * time.Millisecond
	}
	if r.MaxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(r.MaxBackoffMs) * time.Millisecond
	}
	if r.Multiplier > 0 {
		p.Multiplier = r.Multiplier
	}
	if r.JitterFraction >= 0 {
		p.JitterFraction = r.JitterFraction
	}
	return p
}

// Policy returns the contact provider breaker settings.
func (c CircuitConfig) Policy() resilience.CircuitBreakerConfig {
	p := resilience.DefaultCircuitBreakerConfig()
	if c.FailureThreshold > 0 {
		p.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		p.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return p
}
