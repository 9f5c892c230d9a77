package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clearfab/gateway/internal/tenant"
)

// APIKeyRepo backs the tenant resolver's credential lookup.
type APIKeyRepo struct {
	db *sql.DB
}

var _ tenant.KeyStore = (*APIKeyRepo)(nil)

// FindAPIKey loads a key by its public id; missing returns (nil, nil).
func (r *APIKeyRepo) FindAPIKey(ctx context.Context, keyID string) (*tenant.APIKey, error) {
	k := &tenant.APIKey{KeyID: keyID}
	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, key_hash, is_active, expires_at
		FROM tenant_api_keys WHERE key_id = $1`, keyID,
	).Scan(&k.TenantID, &k.KeyHash, &k.IsActive, &k.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load api key: %w", err)
	}
	return k, nil
}

// Insert provisions a key (administrative; the secret is hashed upstream).
func (r *APIKeyRepo) Insert(ctx context.Context, k *tenant.APIKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenant_api_keys (key_id, tenant_id, key_hash, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		k.KeyID, k.TenantID, k.KeyHash, k.IsActive, k.ExpiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// Deactivate disables a key without deleting its audit trail.
func (r *APIKeyRepo) Deactivate(ctx context.Context, keyID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenant_api_keys SET is_active = FALSE WHERE key_id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	return nil
}
