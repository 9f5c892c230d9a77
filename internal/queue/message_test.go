package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	legal := []struct{ from, to string }{
		{StatusPending, StatusInFlight},
		{StatusPending, StatusExpired},
		{StatusInFlight, StatusDone},
		{StatusInFlight, StatusFailed},
		{StatusInFlight, StatusExpired},
		{StatusFailed, StatusPending},
		{StatusFailed, StatusInFlight}, // a claim takes failed rows straight back in flight
		{StatusFailed, StatusExpired},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s must be legal", tc.from, tc.to)
	}

	illegal := []struct{ from, to string }{
		{StatusPending, StatusDone},
		{StatusPending, StatusFailed},
		{StatusDone, StatusPending},
		{StatusExpired, StatusPending},
		{StatusDone, StatusInFlight},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s must be illegal", tc.from, tc.to)
	}
}

func TestTransitionAppliesAndGuards(t *testing.T) {
	m := &Message{MessageID: "qm-1", Status: StatusPending}

	require.NoError(t, m.Transition(StatusInFlight))
	assert.Equal(t, StatusInFlight, m.Status)
	assert.False(t, m.UpdatedAt.IsZero())

	err := m.Transition(StatusPending)
	require.Error(t, err, "IN_FLIGHT cannot fall back to PENDING directly")
	assert.Equal(t, StatusInFlight, m.Status, "a rejected transition leaves the status untouched")
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	cases := map[int]time.Duration{
		0: 30 * time.Second,
		1: time.Minute,
		2: 2 * time.Minute,
		5: 16 * time.Minute,
		6: 30 * time.Minute,
		9: 30 * time.Minute,
	}
	for retries, want := range cases {
		assert.Equal(t, want, Backoff(retries), "retry %d", retries)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now().UTC()
	m := &Message{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, m.Expired(now))
	assert.True(t, m.Expired(now.Add(2*time.Hour)))
}
