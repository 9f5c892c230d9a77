package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/iso20022"
	"github.com/clearfab/gateway/internal/tenant"
)

// ProcessInbound handles a scheme-to-client message: correlate it to the
// awaiting outbound flow, resolve that flow, and shape the client-facing
// message. Orphans are logged and surfaced as OrphanResponse; a correlation
// is never invented.
func (e *Engine) ProcessInbound(ctx context.Context, messageType string, msg iso20022.Message) (*Result, error) {
	if !iso20022.KnownType(messageType) {
		return nil, faults.Newf(faults.ValidationFailed, "unsupported message type %q", messageType)
	}
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	id := iso20022.ExtractUETR(msg, messageType)
	originalMsgID, txID := originalRefs(msg, messageType)

	// Correlate: in-memory first, datastore second (records that outlived
	// this process or live on another instance).
	awaiting, ok := e.correlator.Resolve(id, originalMsgID, txID)
	if !ok {
		awaiting = e.lookupStored(ctx, id, originalMsgID, txID)
	}

	// A message correlated by its reference tuple may omit the UETR; thread
	// the awaiting flow's reference back in so shaping stays uniform.
	if id == "" && awaiting != nil {
		id = awaiting.UETR
		if spec, ok := iso20022.SpecFor(messageType); ok && len(spec.UETRPaths) > 0 {
			_ = msg.Set(spec.UETRPaths[0], id)
		}
	}

	inbound := &Record{
		CorrelationID:       uuid.New().String(),
		UETR:                id,
		TenantID:            tc.TenantID,
		Direction:           DirectionSchemeToClient,
		OriginalMessageType: messageType,
		Status:              StatusInitiated,
		OriginalMessageID:   originalMsgID,
		ProcessingStartedAt: time.Now().UTC(),
		Metadata:            map[string]string{},
	}
	if err := e.store.Insert(ctx, inbound); err != nil {
		return nil, err
	}
	e.track(ctx, inbound, messageType)
	defer e.finish(inbound, messageType)

	if awaiting == nil {
		if e.metrics != nil {
			e.metrics.OrphanInbound.Inc()
		}
		inbound.Metadata["orphan"] = "true"
		terminalize(inbound, StatusFailed)
		_ = e.store.Update(ctx, inbound)
		e.logger.Printf("orphan %s: uetr=%q orgnlMsgId=%q txId=%q", messageType, id, originalMsgID, txID)
		return nil, faults.Newf(faults.OrphanResponse,
			"no awaiting flow for inbound %s", messageType).
			WithCorrelation(inbound.CorrelationID, id)
	}

	clientMsg, outcome, err := e.shapeInbound(messageType, msg)
	if err != nil {
		return nil, e.fail(ctx, inbound, err)
	}

	// Resolve the awaiting outbound flow.
	terminalize(awaiting, outcome)
	_ = e.store.Update(ctx, awaiting)
	e.correlator.Evict(awaiting)
	e.emit("gateway.flow.resolved", awaiting)

	terminalize(inbound, StatusSuccess)
	_ = e.store.Update(ctx, inbound)
	e.emit("gateway.flow.completed", inbound)

	return &Result{
		MessageID:        originalMsgID,
		CorrelationID:    awaiting.CorrelationID,
		UETR:             awaiting.UETR,
		Status:           outcome,
		ClientResponse:   clientMsg,
		ProcessingTimeMs: awaiting.ProcessingTimeMs,
		Metadata:         awaiting.Metadata,
	}, nil
}

// lookupStored consults the datastore indices; errors degrade to a miss so
// a flaky read never turns a correlated message into an orphan silently
// (the orphan path logs and the operator sees both signals).
func (e *Engine) lookupStored(ctx context.Context, id, originalMsgID, txID string) *Record {
	if id != "" {
		if r, err := e.store.GetAwaitingByUETR(ctx, id); err == nil && r != nil {
			return r
		}
	}
	if originalMsgID != "" && txID != "" {
		if r, err := e.store.GetAwaitingByOriginalRefs(ctx, originalMsgID, txID); err == nil && r != nil {
			return r
		}
	}
	return nil
}

// shapeInbound converts the scheme message into the client dialect and
// derives the awaiting flow's terminal status.
func (e *Engine) shapeInbound(messageType string, msg iso20022.Message) (map[string]interface{}, string, error) {
	switch messageType {
	case iso20022.Pacs002:
		out, err := e.transformer.Pacs002ToPain002(msg)
		if err != nil {
			return nil, "", err
		}
		status := msg.GetString("FIToFIPmtStsRpt/TxInfAndSts[0]/TxSts")
		if status == "" {
			status = msg.GetString("FIToFIPmtStsRpt/OrgnlGrpInfAndSts/GrpSts")
		}
		outcome := StatusSuccess
		if status == "RJCT" {
			outcome = StatusFailed
		}
		return out, outcome, nil
	case iso20022.Pacs004:
		out, err := e.transformer.Pacs004ToPain002(msg)
		if err != nil {
			return nil, "", err
		}
		// a return always fails the original payment
		return out, StatusFailed, nil
	case iso20022.Camt054:
		out, err := e.transformer.Camt054ToNotification(msg)
		return out, StatusSuccess, err
	case iso20022.Camt029:
		out, err := e.transformer.Camt029ToNotification(msg)
		return out, StatusSuccess, err
	default:
		return nil, "", faults.Newf(faults.ValidationFailed,
			"%s is not an inbound scheme message", messageType)
	}
}

// originalRefs pulls the original message id and transaction id at the
// inbound type's documented locations.
func originalRefs(msg iso20022.Message, messageType string) (string, string) {
	switch messageType {
	case iso20022.Pacs002:
		return msg.GetString("FIToFIPmtStsRpt/OrgnlGrpInfAndSts/OrgnlMsgId"),
			msg.GetString("FIToFIPmtStsRpt/TxInfAndSts[0]/OrgnlTxId")
	case iso20022.Pacs004:
		return msg.GetString("PmtRtr/OrgnlGrpInf/OrgnlMsgId"),
			msg.GetString("PmtRtr/TxInf[0]/OrgnlTxId")
	case iso20022.Camt029:
		return msg.GetString("RsltnOfInvstgtn/CxlDtls[0]/OrgnlGrpInfAndSts/OrgnlMsgId"), ""
	case iso20022.Camt054:
		return msg.GetString("BkToCstmrDbtCdtNtfctn/GrpHdr/MsgId"),
			msg.GetString("BkToCstmrDbtCdtNtfctn/Ntfctn[0]/Ntry[0]/NtryDtls[0]/TxDtls[0]/Refs/TxId")
	}
	return "", ""
}
