// Package idempotency implements the write-path idempotency gate: mutating
// requests carrying an X-Idempotency-Key are answered once, and replays of
// the same request get the stored response back.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/store"
)

// Request headers and response markers of the gate.
const (
	HeaderKey          = "X-Idempotency-Key"
	HeaderReplay       = "X-Idempotency-Replay"
	HeaderOriginalTime = "X-Original-Request-Time"
)

// DefaultTTL is how long a stored response stays replayable.
const DefaultTTL = 24 * time.Hour

// Decision is the gate's verdict for one keyed request.
type Decision int

const (
	// Process means no usable record exists; handle the request and record
	// the outcome.
	Process Decision = iota
	// Replay means a fresh record with a matching hash exists; return it.
	Replay
)

// Records is the slice of the datastore the gate needs; the store package
// implements it.
type Records interface {
	Get(ctx context.Context, tenantID, key string) (*store.IdempotencyRecord, error)
	Put(ctx context.Context, rec *store.IdempotencyRecord) error
	Delete(ctx context.Context, tenantID, key string) error
}

// Gate coordinates lookups and writes against the idempotency store.
type Gate struct {
	repo   Records
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

// NewGate builds the gate; ttl <= 0 selects the 24h default.
func NewGate(repo Records, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		repo:   repo,
		ttl:    ttl,
		logger: log.New(log.Writer(), "[IDEMPOTENCY] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Hash derives the request fingerprint: SHA-256 over method, endpoint and
// body joined by ':'. Reusing a key with a different fingerprint is a
// conflict.
func Hash(method, endpoint string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write([]byte(endpoint))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Check resolves the key against the store. It returns Replay with the stored
// record, Process with nil, or an IdempotencyConflict fault.
func (g *Gate) Check(ctx context.Context, tenantID, key, method, endpoint string, body []byte) (Decision, *store.IdempotencyRecord, error) {
	rec, err := g.repo.Get(ctx, tenantID, key)
	if err != nil {
		return Process, nil, err
	}
	if rec == nil {
		return Process, nil, nil
	}
	if rec.Expired(g.now().UTC()) {
		// Expired records are dead: remove and reprocess.
		if err := g.repo.Delete(ctx, tenantID, key); err != nil {
			return Process, nil, err
		}
		return Process, nil, nil
	}
	if rec.RequestHash != Hash(method, endpoint, body) {
		g.logger.Printf("conflict on key %s for tenant %s", key, tenantID)
		return Process, nil, faults.Newf(faults.IdempotencyConflict,
			"idempotency key %s was already used with a different request", key)
	}
	return Replay, rec, nil
}

// Record stores a completed response under the key. Only successful (2xx)
// outcomes are recorded; failures must stay retryable.
func (g *Gate) Record(ctx context.Context, tenantID, key, method, endpoint string, body []byte, status int, responseBody []byte) error {
	if status < 200 || status > 299 {
		return nil
	}
	now := g.now().UTC()
	return g.repo.Put(ctx, &store.IdempotencyRecord{
		Key:            key,
		TenantID:       tenantID,
		Endpoint:       endpoint,
		Method:         method,
		RequestHash:    Hash(method, endpoint, body),
		ResponseStatus: status,
		ResponseBody:   bytes.Clone(responseBody),
		ProcessedAt:    now,
		ExpiresAt:      now.Add(g.ttl),
	})
}
