package resiliency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clearfab/gateway/internal/faults"
)

// ErrBulkheadFull marks local backpressure rejections.
var ErrBulkheadFull = errors.New("bulkhead exhausted")

// Bulkhead bounds the number of concurrent in-flight calls per service.
// Admission waits up to MaxWaitDuration for a slot; a rejection is explicit
// backpressure and happens before any retry loop runs, so it never consumes
// a retry attempt.
type Bulkhead struct {
	name  string
	slots chan struct{}
	wait  time.Duration
}

func NewBulkhead(name string, cfg BulkheadPolicy) *Bulkhead {
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = 20
	}
	return &Bulkhead{
		name:  name,
		slots: make(chan struct{}, cfg.MaxConcurrentCalls),
		wait:  cfg.MaxWaitDuration,
	}
}

// Acquire takes a slot or fails with AdapterUnavailable after the wait.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(b.wait)
	defer timer.Stop()

	select {
	case b.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return faults.Wrap(faults.AdapterUnavailable,
			fmt.Sprintf("bulkhead %s exhausted (%d in flight)", b.name, cap(b.slots)), ErrBulkheadFull)
	case <-ctx.Done():
		return faults.Wrap(faults.Timeout, "cancelled while waiting for bulkhead "+b.name, ctx.Err())
	}
}

// Release returns a slot.
func (b *Bulkhead) Release() {
	select {
	case <-b.slots:
	default:
		// release without acquire is a programming error; don't block
	}
}

// InFlight reports the current number of occupied slots (for metrics).
func (b *Bulkhead) InFlight() int { return len(b.slots) }

// FreeSlots reports remaining capacity (for health snapshots).
func (b *Bulkhead) FreeSlots() int { return cap(b.slots) - len(b.slots) }
