package core

import (
	"context"
	"time"
)

// CircuitBreaker protects a single backend from cascading failures. The
// Backend Router holds one per (capability, backend_id) pair.
//
// States: closed (normal), open (failing fast), half-open (probing).
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error
	State() string
	CanExecute() bool
	Reset()
}

// CircuitBreakerConfig mirrors the health-check thresholds spec.md §4.B
// names: N consecutive failures (≈3) trip the breaker for a cooldown
// (≥30s) before a half-open probe.
type CircuitBreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenProbes   int
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   1,
	}
}
