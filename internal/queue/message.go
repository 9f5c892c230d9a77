// Package queue holds the queued-message model used as the last-resort
// fallback when an adapter cannot accept traffic, plus the drain worker that
// resubmits messages once the self-healing monitor sees the adapter recover.
package queue

import (
	"time"

	"github.com/clearfab/gateway/internal/faults"
)

// Queued message statuses. Transitions are monotonic except that FAILED rows
// re-enter the cycle, either rescheduled to PENDING or claimed straight to
// IN_FLIGHT by a drain batch; EXPIRED and DONE are terminal.
const (
	StatusPending  = "PENDING"
	StatusInFlight = "IN_FLIGHT"
	StatusFailed   = "FAILED"
	StatusExpired  = "EXPIRED"
	StatusDone     = "DONE"
)

// DefaultExpiry bounds how long a message may wait for its adapter to come
// back before it is abandoned. Tenants can override it.
const DefaultExpiry = 72 * time.Hour

// Message is one parked payment waiting for its adapter to recover.
type Message struct {
	MessageID    string    `json:"messageId"`
	TenantID     string    `json:"tenantId"`
	ServiceName  string    `json:"serviceName"`
	Payload      []byte    `json:"payload"`
	Status       string    `json:"status"`
	RetryCount   int       `json:"retryCount"`
	NextRetryAt  time.Time `json:"nextRetryAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Expired reports whether the message passed its deadline.
func (m *Message) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// validTransitions encodes the status machine. A terminal status has no
// entries.
var validTransitions = map[string][]string{
	StatusPending:  {StatusInFlight, StatusExpired},
	StatusInFlight: {StatusDone, StatusFailed, StatusExpired},
	StatusFailed:   {StatusPending, StatusInFlight, StatusExpired},
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change.
func (m *Message) Transition(to string) error {
	if !CanTransition(m.Status, to) {
		return faults.Newf(faults.Internal, "illegal queued-message transition %s -> %s", m.Status, to)
	}
	m.Status = to
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// Backoff computes the wait before the next retry: 30s doubling per attempt,
// capped at 30 minutes.
func Backoff(retryCount int) time.Duration {
	wait := 30 * time.Second
	for i := 0; i < retryCount; i++ {
		wait *= 2
		if wait >= 30*time.Minute {
			return 30 * time.Minute
		}
	}
	return wait
}
