package flow

import (
	"sync"
)

// Correlator matches inbound scheme messages to awaiting flow records. Two
// indices: UETR, and the (OrgnlMsgId, OrgnlTxId) tuple for messages that
// omit the UETR. Entries are evicted when the record terminalizes; the
// engine falls back to the datastore for correlations that outlive the
// process.
type Correlator struct {
	mu     sync.RWMutex
	byUETR map[string]*Record
	byRefs map[refKey]*Record
}

type refKey struct {
	originalMsgID string
	transactionID string
}

func NewCorrelator() *Correlator {
	return &Correlator{
		byUETR: make(map[string]*Record),
		byRefs: make(map[refKey]*Record),
	}
}

// Register indexes an awaiting record under both its UETR and its original
// references (when present).
func (c *Correlator) Register(r *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.UETR != "" {
		c.byUETR[r.UETR] = r
	}
	if r.OriginalMessageID != "" && r.TransactionID != "" {
		c.byRefs[refKey{r.OriginalMessageID, r.TransactionID}] = r
	}
}

// Resolve looks up an awaiting record: UETR first, then the reference tuple.
// A miss is not an error here; the caller decides whether the message is an
// orphan after consulting the datastore.
func (c *Correlator) Resolve(uetr, originalMsgID, transactionID string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if uetr != "" {
		if r, ok := c.byUETR[uetr]; ok {
			return r, true
		}
	}
	if originalMsgID != "" && transactionID != "" {
		if r, ok := c.byRefs[refKey{originalMsgID, transactionID}]; ok {
			return r, true
		}
	}
	return nil, false
}

// Evict drops a terminalized record from both indices.
func (c *Correlator) Evict(r *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.UETR != "" {
		delete(c.byUETR, r.UETR)
	}
	if r.OriginalMessageID != "" && r.TransactionID != "" {
		delete(c.byRefs, refKey{r.OriginalMessageID, r.TransactionID})
	}
}

// Pending reports how many records await correlation.
func (c *Correlator) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byUETR)
}
