package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/clearfab/gateway/internal/clearing"
	"github.com/clearfab/gateway/internal/tenant"
)

// ClearingRepo persists clearing-adapter aggregates. Save serializes per
// adapter by row-locking the aggregate row inside a transaction, so two
// concurrent mutations of the same adapter never interleave writes.
type ClearingRepo struct {
	db     *sql.DB
	logger *log.Logger
}

// Save writes the whole aggregate: adapter row, route rows (replaced), and
// any message-log entries not yet persisted (append-only, keyed by log_id).
func (r *ClearingRepo) Save(ctx context.Context, a *clearing.Adapter) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin adapter save: %w", err)
	}
	defer tx.Rollback()

	// Upsert-and-lock. INSERT claims a fresh adapter; the FOR UPDATE select
	// serializes concurrent mutators of an existing one.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO clearing_adapters
			(adapter_id, tenant_id, business_unit, name, network, status,
			 endpoint, api_version, timeout_seconds, retry_attempts, encryption_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (adapter_id) DO NOTHING`,
		a.AdapterID, a.Tenant.TenantID, a.Tenant.BusinessUnit, a.Name, a.Network,
		a.Status, a.Endpoint, a.APIVersion, a.TimeoutSeconds, a.RetryAttempts,
		a.EncryptionEnabled)
	if err != nil {
		return fmt.Errorf("failed to insert adapter: %w", err)
	}
	var locked string
	if err := tx.QueryRowContext(ctx,
		`SELECT adapter_id FROM clearing_adapters WHERE adapter_id = $1 FOR UPDATE`,
		a.AdapterID).Scan(&locked); err != nil {
		return fmt.Errorf("failed to lock adapter row: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE clearing_adapters SET
			name = $2, network = $3, status = $4, endpoint = $5, api_version = $6,
			timeout_seconds = $7, retry_attempts = $8, encryption_enabled = $9
		WHERE adapter_id = $1`,
		a.AdapterID, a.Name, a.Network, a.Status, a.Endpoint, a.APIVersion,
		a.TimeoutSeconds, a.RetryAttempts, a.EncryptionEnabled)
	if err != nil {
		return fmt.Errorf("failed to update adapter: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM clearing_routes WHERE adapter_id = $1`, a.AdapterID); err != nil {
		return fmt.Errorf("failed to clear routes: %w", err)
	}
	for _, rt := range a.Routes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO clearing_routes
				(route_id, adapter_id, name, source, destination, priority, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rt.RouteID, rt.AdapterID, rt.Name, rt.Source, rt.Destination,
			rt.Priority, rt.Status)
		if err != nil {
			return fmt.Errorf("failed to insert route %s: %w", rt.RouteID, err)
		}
	}

	for _, ml := range a.MessageLogs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO clearing_message_logs
				(log_id, adapter_id, uetr, message_type, direction, payload, logged_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (log_id) DO NOTHING`,
			ml.LogID, ml.AdapterID, ml.UETR, ml.MessageType, ml.Direction,
			ml.Payload, ml.LoggedAt)
		if err != nil {
			return fmt.Errorf("failed to append message log %s: %w", ml.LogID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit adapter save: %w", err)
	}
	return nil
}

// Get loads one aggregate with its routes. Message logs are not hydrated;
// they are an audit stream read through ListMessageLogs.
func (r *ClearingRepo) Get(ctx context.Context, adapterID string) (*clearing.Adapter, error) {
	a := &clearing.Adapter{}
	err := r.db.QueryRowContext(ctx, `
		SELECT adapter_id, tenant_id, business_unit, name, network, status,
		       endpoint, api_version, timeout_seconds, retry_attempts, encryption_enabled
		FROM clearing_adapters WHERE adapter_id = $1`, adapterID,
	).Scan(&a.AdapterID, &a.Tenant.TenantID, &a.Tenant.BusinessUnit, &a.Name,
		&a.Network, &a.Status, &a.Endpoint, &a.APIVersion, &a.TimeoutSeconds,
		&a.RetryAttempts, &a.EncryptionEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load adapter: %w", err)
	}
	if err := r.loadRoutes(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListActiveByTenant returns the tenant's ACTIVE adapters with routes
// hydrated, for routing decisions.
func (r *ClearingRepo) ListActiveByTenant(ctx context.Context, tc tenant.Context) ([]*clearing.Adapter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT adapter_id, tenant_id, business_unit, name, network, status,
		       endpoint, api_version, timeout_seconds, retry_attempts, encryption_enabled
		FROM clearing_adapters
		WHERE tenant_id = $1 AND status = $2
		ORDER BY name`, tc.TenantID, clearing.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list adapters: %w", err)
	}
	defer rows.Close()

	var out []*clearing.Adapter
	for rows.Next() {
		a := &clearing.Adapter{}
		if err := rows.Scan(&a.AdapterID, &a.Tenant.TenantID, &a.Tenant.BusinessUnit,
			&a.Name, &a.Network, &a.Status, &a.Endpoint, &a.APIVersion,
			&a.TimeoutSeconds, &a.RetryAttempts, &a.EncryptionEnabled); err != nil {
			return nil, fmt.Errorf("failed to scan adapter: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, a := range out {
		if err := r.loadRoutes(ctx, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *ClearingRepo) loadRoutes(ctx context.Context, a *clearing.Adapter) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT route_id, adapter_id, name, source, destination, priority, status
		FROM clearing_routes
		WHERE adapter_id = $1
		ORDER BY priority ASC, route_id ASC`, a.AdapterID)
	if err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}
	defer rows.Close()

	a.Routes = nil
	for rows.Next() {
		var rt clearing.Route
		if err := rows.Scan(&rt.RouteID, &rt.AdapterID, &rt.Name, &rt.Source,
			&rt.Destination, &rt.Priority, &rt.Status); err != nil {
			return fmt.Errorf("failed to scan route: %w", err)
		}
		a.Routes = append(a.Routes, rt)
	}
	return rows.Err()
}

// ListMessageLogs returns the adapter's audit stream, newest first.
func (r *ClearingRepo) ListMessageLogs(ctx context.Context, adapterID string, limit int) ([]clearing.MessageLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT log_id, adapter_id, uetr, message_type, direction, payload, logged_at
		FROM clearing_message_logs
		WHERE adapter_id = $1
		ORDER BY logged_at DESC
		LIMIT $2`, adapterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list message logs: %w", err)
	}
	defer rows.Close()

	var out []clearing.MessageLog
	for rows.Next() {
		var ml clearing.MessageLog
		if err := rows.Scan(&ml.LogID, &ml.AdapterID, &ml.UETR, &ml.MessageType,
			&ml.Direction, &ml.Payload, &ml.LoggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message log: %w", err)
		}
		out = append(out, ml)
	}
	return out, rows.Err()
}
