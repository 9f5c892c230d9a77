package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IdempotencyRecord is the stored outcome of a keyed mutating request.
type IdempotencyRecord struct {
	Key            string
	TenantID       string
	Endpoint       string
	Method         string
	RequestHash    string
	ResponseStatus int
	ResponseBody   []byte
	ProcessedAt    time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the record passed its TTL.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IdempotencyRepo persists idempotency keys, unique per (tenant, key).
type IdempotencyRepo struct {
	db *sql.DB
}

// Get looks up a record. A missing key returns (nil, nil).
func (r *IdempotencyRepo) Get(ctx context.Context, tenantID, key string) (*IdempotencyRecord, error) {
	rec := &IdempotencyRecord{TenantID: tenantID, Key: key}
	err := r.db.QueryRowContext(ctx, `
		SELECT endpoint, method, request_hash, response_status, response_body, processed_at, expires_at
		FROM idempotency_keys
		WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key,
	).Scan(&rec.Endpoint, &rec.Method, &rec.RequestHash, &rec.ResponseStatus,
		&rec.ResponseBody, &rec.ProcessedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load idempotency key: %w", err)
	}
	return rec, nil
}

// Put stores a record. The upsert keeps the first completed response when two
// requests with the same key race to completion.
func (r *IdempotencyRepo) Put(ctx context.Context, rec *IdempotencyRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys
			(tenant_id, idempotency_key, endpoint, method, request_hash,
			 response_status, response_body, processed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`,
		rec.TenantID, rec.Key, rec.Endpoint, rec.Method, rec.RequestHash,
		rec.ResponseStatus, rec.ResponseBody, rec.ProcessedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

// Delete removes an expired record so the request can be reprocessed.
func (r *IdempotencyRepo) Delete(ctx context.Context, tenantID, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key)
	if err != nil {
		return fmt.Errorf("failed to delete idempotency key: %w", err)
	}
	return nil
}

// PurgeExpired drops every record past its TTL; the cleanup ticker calls it.
func (r *IdempotencyRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency keys: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
