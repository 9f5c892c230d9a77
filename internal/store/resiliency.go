package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/clearfab/gateway/internal/resiliency"
)

// ResiliencyConfiguration is one tenant's per-service protection policy plus
// the health-check probe the self-healing monitor runs against the service.
type ResiliencyConfiguration struct {
	ConfigID                  string
	TenantID                  string
	ServiceName               string
	Policy                    resiliency.Policy
	HealthCheckMethod         string
	HealthCheckEndpoint       string
	ExpectedStatusCodes       []int64 // empty means the 200-299 default
	HealthCheckTimeoutSeconds int
	Active                    bool
	UpdatedAt                 time.Time
}

// HealthCheckTimeout returns the probe deadline, defaulting to 10s.
func (c *ResiliencyConfiguration) HealthCheckTimeout() time.Duration {
	if c.HealthCheckTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HealthCheckTimeoutSeconds) * time.Second
}

// StatusExpected reports whether the probe response status counts as healthy.
func (c *ResiliencyConfiguration) StatusExpected(status int) bool {
	if len(c.ExpectedStatusCodes) == 0 {
		return status >= 200 && status <= 299
	}
	for _, code := range c.ExpectedStatusCodes {
		if int(code) == status {
			return true
		}
	}
	return false
}

// ResiliencyRepo persists resiliency configurations. Policies are stored as
// JSONB so policy-shape evolution never needs a migration.
type ResiliencyRepo struct {
	db *sql.DB
}

// Upsert installs or replaces a configuration, keyed by (tenant, service).
func (r *ResiliencyRepo) Upsert(ctx context.Context, cfg *ResiliencyConfiguration) error {
	policy, err := json.Marshal(cfg.Policy)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO resiliency_configurations
			(config_id, tenant_id, service_name, policy, health_check_method,
			 health_check_endpoint, expected_status_codes,
			 health_check_timeout_seconds, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, service_name) DO UPDATE SET
			policy = EXCLUDED.policy,
			health_check_method = EXCLUDED.health_check_method,
			health_check_endpoint = EXCLUDED.health_check_endpoint,
			expected_status_codes = EXCLUDED.expected_status_codes,
			health_check_timeout_seconds = EXCLUDED.health_check_timeout_seconds,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		cfg.ConfigID, cfg.TenantID, cfg.ServiceName, policy, cfg.HealthCheckMethod,
		cfg.HealthCheckEndpoint, pq.Array(cfg.ExpectedStatusCodes),
		cfg.HealthCheckTimeoutSeconds, cfg.Active, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert resiliency configuration: %w", err)
	}
	return nil
}

// Get loads one configuration; missing returns (nil, nil).
func (r *ResiliencyRepo) Get(ctx context.Context, tenantID, service string) (*ResiliencyConfiguration, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT config_id, tenant_id, service_name, policy, health_check_method,
		       health_check_endpoint, expected_status_codes,
		       health_check_timeout_seconds, active, updated_at
		FROM resiliency_configurations
		WHERE tenant_id = $1 AND service_name = $2`, tenantID, service)
	cfg, err := scanResiliencyConfig(row)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListActive returns every active configuration, grouped by tenant in the
// result order. The health poller walks this list each tick.
func (r *ResiliencyRepo) ListActive(ctx context.Context) ([]*ResiliencyConfiguration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT config_id, tenant_id, service_name, policy, health_check_method,
		       health_check_endpoint, expected_status_codes,
		       health_check_timeout_seconds, active, updated_at
		FROM resiliency_configurations
		WHERE active
		ORDER BY tenant_id, service_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list resiliency configurations: %w", err)
	}
	defer rows.Close()

	var out []*ResiliencyConfiguration
	for rows.Next() {
		cfg, err := scanResiliencyConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func scanResiliencyConfig(row rowScanner) (*ResiliencyConfiguration, error) {
	cfg := &ResiliencyConfiguration{}
	var policy []byte
	var codes pq.Int64Array
	err := row.Scan(&cfg.ConfigID, &cfg.TenantID, &cfg.ServiceName, &policy,
		&cfg.HealthCheckMethod, &cfg.HealthCheckEndpoint, &codes,
		&cfg.HealthCheckTimeoutSeconds, &cfg.Active, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resiliency configuration: %w", err)
	}
	cfg.Policy = resiliency.DefaultPolicy()
	if len(policy) > 0 {
		if err := json.Unmarshal(policy, &cfg.Policy); err != nil {
			return nil, fmt.Errorf("failed to decode policy: %w", err)
		}
	}
	cfg.ExpectedStatusCodes = []int64(codes)
	return cfg, nil
}
