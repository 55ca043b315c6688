package dogstats

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   Outcome
	}{
		{name: "ok", status: 200, want: OutcomeOK},
		{name: "forbidden", status: 403, want: OutcomeForbidden},
		{name: "throttled", status: 429, want: OutcomeThrottled},
		{name: "not found", status: 404, want: OutcomeNotFound},
		{name: "server error", status: 500, want: OutcomeHTTPError},
		{name: "redirect", status: 302, want: OutcomeHTTPError},
		{name: "transport error wins", status: 0, err: errors.New("dial tcp: refused"), want: OutcomeNetworkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, classify(tt.status, tt.err))
		})
	}
}

func TestPolicyRetryable(t *testing.T) {
	p := Policy{MaxAttempts: 3, BackoffFactor: 2.0}

	// Terminal outcomes never retry, even on the first attempt.
	require.False(t, p.Retryable(OutcomeOK, 0))
	require.False(t, p.Retryable(OutcomeNotFound, 0))

	require.True(t, p.Retryable(OutcomeForbidden, 0))
	require.True(t, p.Retryable(OutcomeThrottled, 1))
	require.True(t, p.Retryable(OutcomeNetworkError, 1))
	// The last attempt has no retry left.
	require.False(t, p.Retryable(OutcomeForbidden, 2))
	require.False(t, p.Retryable(OutcomeHTTPError, 2))
}

func TestPolicyWait(t *testing.T) {
	p := Policy{MaxAttempts: 3, BackoffFactor: 2.0}
	base := 2 * time.Second

	// Blocking waits climb steeper than ordinary errors.
	require.Equal(t, 4*time.Second, p.Wait(OutcomeForbidden, 0, base))
	require.Equal(t, 6*time.Second, p.Wait(OutcomeForbidden, 1, base))

	// Throttling backs off exponentially.
	require.Equal(t, 4*time.Second, p.Wait(OutcomeThrottled, 0, base))
	require.Equal(t, 8*time.Second, p.Wait(OutcomeThrottled, 1, base))

	require.Equal(t, 2*time.Second, p.Wait(OutcomeHTTPError, 0, base))
	require.Equal(t, 4*time.Second, p.Wait(OutcomeNetworkError, 1, base))
}
