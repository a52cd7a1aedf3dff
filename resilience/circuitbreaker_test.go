package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := New("test", core.DefaultCircuitBreakerConfig())
	assert.Equal(t, "closed", cb.State())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreakerExecutePassesThroughSuccess(t *testing.T) {
	cb := New("test", core.DefaultCircuitBreakerConfig())
	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cfg := core.CircuitBreakerConfig{FailureThreshold: 3, Cooldown: time.Minute, HalfOpenProbes: 1}
	cb := New("test", cfg)
	failing := errors.New("backend down")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}

	assert.Equal(t, "open", cb.State())
	assert.False(t, cb.CanExecute())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCircuitBreakerOpen))
}

func TestCircuitBreakerExecuteWithTimeoutExceedsDeadline(t *testing.T) {
	cb := New("test", core.DefaultCircuitBreakerConfig())

	err := cb.ExecuteWithTimeout(context.Background(), 10*time.Millisecond, func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, core.KindTimeout, core.KindOf(err))
}
