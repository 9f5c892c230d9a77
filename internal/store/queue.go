package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clearfab/gateway/internal/queue"
)

// QueueRepo persists queued messages. Claims use FOR UPDATE SKIP LOCKED so
// two drainers never take the same row.
type QueueRepo struct {
	db *sql.DB
}

// Enqueue parks a message.
func (r *QueueRepo) Enqueue(ctx context.Context, m *queue.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO queued_messages
			(message_id, tenant_id, service_name, payload, status, retry_count,
			 next_retry_at, expires_at, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.MessageID, m.TenantID, m.ServiceName, m.Payload, m.Status, m.RetryCount,
		m.NextRetryAt, m.ExpiresAt, m.ErrorMessage, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

// ClaimBatch atomically selects up to limit drainable rows (FAILED, or
// PENDING past next_retry_at), marks them IN_FLIGHT and returns them. The
// optional service filter narrows a recovery-triggered drain to one adapter.
func (r *QueueRepo) ClaimBatch(ctx context.Context, service string, limit int, now time.Time) ([]*queue.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT message_id, tenant_id, service_name, payload, status, retry_count,
		       next_retry_at, expires_at, error_message, created_at, updated_at
		FROM queued_messages
		WHERE (status = 'FAILED' OR (status = 'PENDING' AND next_retry_at <= $1))
		  AND expires_at > $1
		  AND ($2 = '' OR service_name = $2)
		ORDER BY next_retry_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`, now, service, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable rows: %w", err)
	}

	var claimed []*queue.Message
	for rows.Next() {
		m := &queue.Message{}
		if err := rows.Scan(&m.MessageID, &m.TenantID, &m.ServiceName, &m.Payload,
			&m.Status, &m.RetryCount, &m.NextRetryAt, &m.ExpiresAt,
			&m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan queued message: %w", err)
		}
		claimed = append(claimed, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, m := range claimed {
		// Drain semantics: the claim itself resets the retry budget.
		m.Status = queue.StatusInFlight
		m.RetryCount = 0
		m.NextRetryAt = now
		m.UpdatedAt = now
		_, err := tx.ExecContext(ctx, `
			UPDATE queued_messages
			SET status = 'IN_FLIGHT', retry_count = 0, next_retry_at = $2, updated_at = $2
			WHERE message_id = $1`, m.MessageID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to mark message in flight: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return claimed, nil
}

// MarkDone finishes a successfully resubmitted message.
func (r *QueueRepo) MarkDone(ctx context.Context, messageID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE queued_messages SET status = 'DONE', updated_at = $2
		WHERE message_id = $1 AND status = 'IN_FLIGHT'`, messageID, now)
	if err != nil {
		return fmt.Errorf("failed to mark message done: %w", err)
	}
	return nil
}

// MarkFailed records a failed resubmission: retry count bumped, next attempt
// scheduled with exponential backoff, status back to FAILED.
func (r *QueueRepo) MarkFailed(ctx context.Context, m *queue.Message, cause error, now time.Time) error {
	m.RetryCount++
	m.NextRetryAt = now.Add(queue.Backoff(m.RetryCount))
	m.Status = queue.StatusFailed
	m.UpdatedAt = now
	if cause != nil {
		m.ErrorMessage = cause.Error()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE queued_messages
		SET status = 'FAILED', retry_count = $2, next_retry_at = $3,
		    error_message = $4, updated_at = $5
		WHERE message_id = $1`,
		m.MessageID, m.RetryCount, m.NextRetryAt, m.ErrorMessage, now)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	return nil
}

// ExpireOverdue transitions every non-terminal row past its deadline to
// EXPIRED and returns how many were expired.
func (r *QueueRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queued_messages SET status = 'EXPIRED', updated_at = $1
		WHERE expires_at < $1 AND status IN ('PENDING', 'FAILED', 'IN_FLIGHT')`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DepthByService counts live (PENDING or FAILED) rows per service for the
// queue-depth gauge.
func (r *QueueRepo) DepthByService(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT service_name, COUNT(*)
		FROM queued_messages
		WHERE status IN ('PENDING', 'FAILED')
		GROUP BY service_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue depth: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var service string
		var n int
		if err := rows.Scan(&service, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue depth: %w", err)
		}
		out[service] = n
	}
	return out, rows.Err()
}
