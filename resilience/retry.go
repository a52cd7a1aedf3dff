// Package resilience implements the retry and circuit-breaking building
// blocks used by the Backend Router (spec.md §4.B) and the Workflow
// Engine's per-step retry budget (spec.md §4.E step 3.c).
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/codemusic/roverseer-gateway/core"
)

// RetryConfig bounds one retry loop. Retryable decides whether a given
// failure should consume another attempt; nil defaults to
// core.IsRetryableByRouter, the Backend Router's fallback policy.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Retryable    func(error) bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// AlwaysRetryable treats every non-nil error as worth another attempt,
// for callers (e.g. the Workflow Engine) whose step errors are not
// necessarily *core.GatewayError and so carry no router-specific Kind.
func AlwaysRetryable(error) bool { return true }

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff
// between attempts, honoring ctx cancellation as a hard stop. It wraps
// cenkalti/backoff/v5 rather than hand-rolling a sleep loop.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialDelay
	bo.MaxInterval = cfg.MaxDelay

	retryable := cfg.Retryable
	if retryable == nil {
		retryable = core.IsRetryableByRouter
	}

	op := func() (struct{}, error) {
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)))
	return err
}
