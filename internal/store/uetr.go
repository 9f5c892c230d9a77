package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/uetr"
)

// UETRTracking is one observed UETR: every generated or received identifier
// lands here so journeys can be reconstructed across message legs.
type UETRTracking struct {
	UETR          string    `json:"uetr"`
	TenantID      string    `json:"tenantId"`
	MessageType   string    `json:"messageType"`
	CorrelationID string    `json:"correlationId"`
	Direction     string    `json:"direction"`
	ObservedAt    time.Time `json:"observedAt"`
}

// UETRRepo persists UETR sightings.
type UETRRepo struct {
	db *sql.DB
}

// Track records one sighting. Duplicate (uetr, correlation_id) pairs are
// ignored so inbound replays do not multiply journey entries.
func (r *UETRRepo) Track(ctx context.Context, t *UETRTracking) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uetr_tracking
			(uetr, tenant_id, message_type, correlation_id, direction, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uetr, correlation_id) DO NOTHING`,
		t.UETR, t.TenantID, t.MessageType, t.CorrelationID, t.Direction, t.ObservedAt)
	if err != nil {
		return fmt.Errorf("failed to track uetr: %w", err)
	}
	return nil
}

// Journey returns every sighting related to the given UETR (same date and
// system segments), oldest first. Malformed identifiers error out before
// touching the database.
func (r *UETRRepo) Journey(ctx context.Context, id string) ([]UETRTracking, error) {
	if !uetr.Validate(id) {
		return nil, faults.Newf(faults.ValidationFailed, "malformed uetr %q", id)
	}
	prefix := id[:13] // YYYYMMDD-SYSID
	rows, err := r.db.QueryContext(ctx, `
		SELECT uetr, tenant_id, message_type, correlation_id, direction, observed_at
		FROM uetr_tracking
		WHERE uetr LIKE $1 || '%'
		ORDER BY observed_at ASC`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load uetr journey: %w", err)
	}
	defer rows.Close()

	var out []UETRTracking
	for rows.Next() {
		var t UETRTracking
		if err := rows.Scan(&t.UETR, &t.TenantID, &t.MessageType, &t.CorrelationID,
			&t.Direction, &t.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan uetr tracking: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
