package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clearfab/gateway/internal/flow"
)

// FlowRepo persists flow records. Terminal records are immutable: the update
// predicate refuses to touch a row already in a terminal status.
type FlowRepo struct {
	db *sql.DB
}

// ErrFlowTerminal is returned when an update targets a record that already
// reached a terminal status.
var ErrFlowTerminal = errors.New("flow record already terminal")

const flowColumns = `
	correlation_id, uetr, tenant_id, direction,
	original_message_type, transformed_message_type,
	clearing_system_code, transaction_id, status, original_message_id,
	processing_started_at, processing_completed_at, processing_time_ms, metadata`

// Insert opens a flow record.
func (r *FlowRepo) Insert(ctx context.Context, rec *flow.Record) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode flow metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO flow_records (`+flowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.CorrelationID, rec.UETR, rec.TenantID, rec.Direction,
		rec.OriginalMessageType, rec.TransformedMessageType,
		rec.ClearingSystemCode, rec.TransactionID, rec.Status, rec.OriginalMessageID,
		rec.ProcessingStartedAt, rec.ProcessingCompletedAt, rec.ProcessingTimeMs, meta)
	if err != nil {
		return fmt.Errorf("failed to insert flow record: %w", err)
	}
	return nil
}

// Update persists the record's current state. Rows already terminal are left
// untouched and the call reports ErrFlowTerminal.
func (r *FlowRepo) Update(ctx context.Context, rec *flow.Record) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode flow metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE flow_records SET
			transformed_message_type = $2,
			clearing_system_code = $3,
			transaction_id = $4,
			status = $5,
			processing_completed_at = $6,
			processing_time_ms = $7,
			metadata = $8
		WHERE correlation_id = $1
		  AND status NOT IN ('SUCCESS', 'FAILED', 'TIMED_OUT', 'QUEUED')`,
		rec.CorrelationID, rec.TransformedMessageType, rec.ClearingSystemCode,
		rec.TransactionID, rec.Status, rec.ProcessingCompletedAt,
		rec.ProcessingTimeMs, meta)
	if err != nil {
		return fmt.Errorf("failed to update flow record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFlowTerminal
	}
	return nil
}

// GetByCorrelationID loads one record.
func (r *FlowRepo) GetByCorrelationID(ctx context.Context, correlationID string) (*flow.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+flowColumns+` FROM flow_records WHERE correlation_id = $1`,
		correlationID)
	return scanFlow(row)
}

// GetAwaitingByUETR finds the newest non-terminal record for a UETR. Used by
// the correlator's persistent fallback when the in-memory index misses.
func (r *FlowRepo) GetAwaitingByUETR(ctx context.Context, uetr string) (*flow.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+flowColumns+` FROM flow_records
		WHERE uetr = $1
		  AND status NOT IN ('SUCCESS', 'FAILED', 'TIMED_OUT', 'QUEUED')
		ORDER BY processing_started_at DESC
		LIMIT 1`, uetr)
	return scanFlow(row)
}

// GetAwaitingByOriginalRefs finds a record by (original message ID,
// transaction ID) when an inbound message omits the UETR.
func (r *FlowRepo) GetAwaitingByOriginalRefs(ctx context.Context, originalMsgID, transactionID string) (*flow.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+flowColumns+` FROM flow_records
		WHERE original_message_id = $1 AND transaction_id = $2
		  AND status NOT IN ('SUCCESS', 'FAILED', 'TIMED_OUT', 'QUEUED')
		ORDER BY processing_started_at DESC
		LIMIT 1`, originalMsgID, transactionID)
	return scanFlow(row)
}

// ListByUETRPrefix returns every record whose UETR shares the given related
// prefix (date + system segments), oldest first. Drives the journey view.
func (r *FlowRepo) ListByUETRPrefix(ctx context.Context, prefix string) ([]*flow.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+flowColumns+` FROM flow_records
		WHERE uetr LIKE $1 || '%'
		ORDER BY processing_started_at ASC`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list flow records: %w", err)
	}
	defer rows.Close()

	var out []*flow.Record
	for rows.Next() {
		rec, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFlow(row rowScanner) (*flow.Record, error) {
	var rec flow.Record
	var meta []byte
	err := row.Scan(
		&rec.CorrelationID, &rec.UETR, &rec.TenantID, &rec.Direction,
		&rec.OriginalMessageType, &rec.TransformedMessageType,
		&rec.ClearingSystemCode, &rec.TransactionID, &rec.Status, &rec.OriginalMessageID,
		&rec.ProcessingStartedAt, &rec.ProcessingCompletedAt, &rec.ProcessingTimeMs, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan flow record: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode flow metadata: %w", err)
		}
	}
	return &rec, nil
}
