package consumers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeekDispatchURL(t *testing.T) {
	require.Equal(t, "https://example.com/hook",
		peekDispatchURL([]byte(`{"url":"https://example.com/hook","event":"message.created"}`)))
	require.Empty(t, peekDispatchURL([]byte(`{"event":"message.created"}`)))
	require.Empty(t, peekDispatchURL([]byte("{not json")))
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := &dispatchCircuitBreaker{}
	require.True(t, cb.canCall())

	for i := 0; i < CircuitBreakerThreshold-1; i++ {
		cb.recordFailure()
		require.True(t, cb.canCall(), "failure %d should keep breaker closed", i+1)
	}
	cb.recordFailure()
	require.False(t, cb.canCall())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := &dispatchCircuitBreaker{}
	for i := 0; i < CircuitBreakerThreshold; i++ {
		cb.recordFailure()
	}
	require.False(t, cb.canCall())

	// Age the last failure past the cool-off.
	cb.mu.Lock()
	cb.lastFailTime = time.Now().Add(-CircuitBreakerTimeout - time.Second)
	cb.mu.Unlock()

	// First probe goes through half-open.
	require.True(t, cb.canCall())

	cb.recordSuccess()
	require.True(t, cb.canCall())

	cb.mu.Lock()
	state := cb.state
	failures := cb.failures
	cb.mu.Unlock()
	require.Equal(t, 0, state)
	require.Equal(t, 0, failures)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := &dispatchCircuitBreaker{}
	for i := 0; i < CircuitBreakerThreshold; i++ {
		cb.recordFailure()
	}
	cb.mu.Lock()
	cb.lastFailTime = time.Now().Add(-CircuitBreakerTimeout - time.Second)
	cb.mu.Unlock()

	require.True(t, cb.canCall())
	cb.recordFailure()
	require.False(t, cb.canCall())
}

func TestGetCircuitBreaker_PerURL(t *testing.T) {
	a := getCircuitBreaker("https://a.example.com/hook")
	b := getCircuitBreaker("https://b.example.com/hook")
	require.NotSame(t, a, b)
	require.Same(t, a, getCircuitBreaker("https://a.example.com/hook"))
}
