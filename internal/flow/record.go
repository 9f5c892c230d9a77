// Package flow is the message-flow engine: it orchestrates validation,
// correlation, transformation, dispatch and response shaping for every
// message that crosses the gateway, and owns the FlowRecord for the lifetime
// of the request.
package flow

import (
	"time"
)

// Flow directions.
const (
	DirectionClientToScheme = "CLIENT_TO_SCHEME"
	DirectionSchemeToClient = "SCHEME_TO_CLIENT"
)

// Flow statuses. INITIATED through AWAITING_RESPONSE are live; the rest are
// terminal and the record is immutable once it reaches one.
const (
	StatusInitiated        = "INITIATED"
	StatusTransformed      = "TRANSFORMED"
	StatusDispatched       = "DISPATCHED"
	StatusAwaitingResponse = "AWAITING_RESPONSE"
	StatusSuccess          = "SUCCESS"
	StatusFailed           = "FAILED"
	StatusTimedOut         = "TIMED_OUT"
	StatusQueued           = "QUEUED"
)

// TerminalStatus reports whether a status ends the flow.
func TerminalStatus(status string) bool {
	switch status {
	case StatusSuccess, StatusFailed, StatusTimedOut, StatusQueued:
		return true
	}
	return false
}

// Record is the per-request audit row. One is opened for every inbound
// request and totally ordered within its UETR.
type Record struct {
	CorrelationID          string            `json:"correlation_id"`
	UETR                   string            `json:"uetr"`
	TenantID               string            `json:"tenant_id"`
	Direction              string            `json:"direction"`
	OriginalMessageType    string            `json:"original_message_type"`
	TransformedMessageType string            `json:"transformed_message_type"`
	ClearingSystemCode     string            `json:"clearing_system_code"`
	TransactionID          string            `json:"transaction_id"`
	Status                 string            `json:"status"`
	OriginalMessageID      string            `json:"original_message_id"`
	ProcessingStartedAt    time.Time         `json:"processing_started_at"`
	ProcessingCompletedAt  *time.Time        `json:"processing_completed_at,omitempty"`
	ProcessingTimeMs       int64             `json:"processing_time_ms"`
	Metadata               map[string]string `json:"metadata,omitempty"`
}

// Result is what the flow engine hands back to the transport layer.
type Result struct {
	MessageID              string                 `json:"messageId"`
	CorrelationID          string                 `json:"correlationId"`
	UETR                   string                 `json:"uetr"`
	Status                 string                 `json:"status"`
	ClearingSystemCode     string                 `json:"clearingSystemCode,omitempty"`
	TransactionID          string                 `json:"transactionId,omitempty"`
	TransformedMessage     map[string]interface{} `json:"transformedMessage,omitempty"`
	ClearingSystemResponse map[string]interface{} `json:"clearingSystemResponse,omitempty"`
	ClientResponse         map[string]interface{} `json:"clientResponse"`
	ProcessingTimeMs       int64                  `json:"processingTimeMs"`
	Metadata               map[string]string      `json:"metadata,omitempty"`
}

// terminalize stamps completion fields. Callers must not mutate the record
// after this.
func terminalize(r *Record, status string) {
	now := time.Now().UTC()
	r.Status = status
	r.ProcessingCompletedAt = &now
	r.ProcessingTimeMs = now.Sub(r.ProcessingStartedAt).Milliseconds()
}
