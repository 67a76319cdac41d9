package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
)

func TestCircuitBreakerTripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Minute})

	assert.NoError(t, cb.Allow())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.Equal(t, apperrors.LLMCircuitOpen.Code, apperrors.CodeOf(err).Code)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestCircuitBreakerSuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute})
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 1, cb.ConsecutiveFailures())
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Millisecond})
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(5 * time.Millisecond)

	// First caller after the reset window gets the probe slot.
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())
	// Concurrent callers are rejected while the probe is in flight.
	assert.Error(t, cb.Allow())

	// Failed probe re-opens; successful probe closes.
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected apperrors.Code
	}{
		{"unauthorized", errors.New("status 401 Unauthorized"), apperrors.LLMAPIKeyMissing},
		{"rate limited", errors.New("429 too many requests, rate limit exceeded"), apperrors.LLMRateLimited},
		{"connection refused", errors.New("dial tcp: connection refused"), apperrors.LLMUnavailable},
		{"server error", errors.New("unexpected status 503"), apperrors.LLMUnavailable},
		{"timeout", errors.New("context deadline exceeded"), apperrors.LLMUnavailable},
		{"unknown", errors.New("something odd"), apperrors.LLMInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyProviderError(tt.err)
			assert.Equal(t, tt.expected.Code, apperrors.CodeOf(classified).Code)
		})
	}

	assert.NoError(t, ClassifyProviderError(nil))
}

func TestClassifyKeepsClassifiedErrors(t *testing.T) {
	orig := apperrors.New(apperrors.LLMRateLimited, "from provider")
	assert.Equal(t, error(orig), ClassifyProviderError(orig))
}

func TestMockScriptedClient(t *testing.T) {
	m := ScriptedClient("first", "second")

	r, err := m.Complete(context.Background(), Request{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "first", r.Content)

	r, _ = m.Complete(context.Background(), Request{Prompt: "b"})
	assert.Equal(t, "second", r.Content)

	// Past the script the last response repeats.
	r, _ = m.Complete(context.Background(), Request{Prompt: "c"})
	assert.Equal(t, "second", r.Content)

	assert.Equal(t, 3, m.CompleteCalls)
	assert.Len(t, m.Requests, 3)
}
