// Package transform converts messages between the customer dialect and the
// interbank dialect. Each conversion is a declarative mapping table applied
// by one generic walker; the tables carry the field knowledge, the walker
// carries the invariants (verbatim UETR, string amounts, fresh MsgId).
package transform

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/iso20022"
	"github.com/clearfab/gateway/internal/uetr"
)

// Transformer applies the mapping tables. It is stateless apart from the
// UETR generator used for response legs.
type Transformer struct {
	gen *uetr.Generator
	now func() time.Time
}

func NewTransformer(gen *uetr.Generator) *Transformer {
	return &Transformer{gen: gen, now: time.Now}
}

// Pain001ToPacs008 maps a customer credit-transfer initiation onto the
// interbank credit transfer, stamping payment type and local instrument.
func (t *Transformer) Pain001ToPacs008(msg iso20022.Message, paymentType, localInstrument string) (iso20022.Message, error) {
	out, err := t.apply(msg, iso20022.Pain001, iso20022.Pacs008, pain001ToPacs008)
	if err != nil {
		return nil, err
	}
	if localInstrument != "" {
		_ = out.Set("FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtTpInf/LclInstrm/Cd", localInstrument)
	}
	if paymentType != "" {
		_ = out.Set("FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtTpInf/SvcLvl/Prtry", paymentType)
	}
	return out, nil
}

// Pain007ToPacs007 maps a customer payment reversal onto the interbank
// reversal.
func (t *Transformer) Pain007ToPacs007(msg iso20022.Message) (iso20022.Message, error) {
	return t.apply(msg, iso20022.Pain007, iso20022.Pacs007, pain007ToPacs007)
}

// Camt055ToPacs007 maps a customer cancellation request onto the interbank
// payment reversal.
func (t *Transformer) Camt055ToPacs007(msg iso20022.Message) (iso20022.Message, error) {
	return t.apply(msg, iso20022.Camt055, iso20022.Pacs007, camt055ToPacs007)
}

// Camt056ToPacs028 maps an interbank cancellation request onto a payment
// status request.
func (t *Transformer) Camt056ToPacs028(msg iso20022.Message) (iso20022.Message, error) {
	return t.apply(msg, iso20022.Camt056, iso20022.Pacs028, camt056ToPacs028)
}

// Pacs002ToPain002 shapes the scheme's status report into the customer copy.
func (t *Transformer) Pacs002ToPain002(msg iso20022.Message) (iso20022.Message, error) {
	return t.apply(msg, iso20022.Pacs002, iso20022.Pain002, pacs002ToPain002)
}

// Pacs004ToPain002 shapes a payment return into a rejected customer status
// report.
func (t *Transformer) Pacs004ToPain002(msg iso20022.Message) (iso20022.Message, error) {
	return t.apply(msg, iso20022.Pacs004, iso20022.Pain002, pacs004ToPain002)
}

// Camt054ToNotification flattens a debit/credit notification into the
// client-facing JSON shape delivered on the ops feed and webhooks.
func (t *Transformer) Camt054ToNotification(msg iso20022.Message) (map[string]interface{}, error) {
	id := iso20022.ExtractUETR(msg, iso20022.Camt054)
	if id == "" {
		return nil, faults.New(faults.TransformationRequired,
			"camt.054 notification requires a UETR")
	}
	entry := "BkToCstmrDbtCdtNtfctn/Ntfctn[0]/Ntry[0]/"
	amount, _ := msg.Get(entry + "Amt")
	bookingDate, _ := msg.Get(entry + "BookgDt")
	return map[string]interface{}{
		"kind":        "BOOKING_NOTIFICATION",
		"uetr":        id,
		"amount":      amount,
		"creditDebit": msg.GetString(entry + "CdtDbtInd"),
		"status":      msg.GetString(entry + "Sts"),
		"bookingDate": bookingDate,
		"endToEndId":  msg.GetString(entry + "NtryDtls[0]/TxDtls[0]/Refs/EndToEndId"),
		"notifiedAt":  t.now().UTC().Format(time.RFC3339),
		"sourceMsgId": msg.GetString("BkToCstmrDbtCdtNtfctn/GrpHdr/MsgId"),
		"messageType": iso20022.Camt054,
	}, nil
}

// Camt029ToNotification flattens a cancellation-investigation resolution.
func (t *Transformer) Camt029ToNotification(msg iso20022.Message) (map[string]interface{}, error) {
	return map[string]interface{}{
		"kind":               "CANCELLATION_RESOLUTION",
		"uetr":               iso20022.ExtractUETR(msg, iso20022.Camt029),
		"originalMsgId":      msg.GetString("RsltnOfInvstgtn/CxlDtls[0]/OrgnlGrpInfAndSts/OrgnlMsgId"),
		"cancellationStatus": msg.GetString("RsltnOfInvstgtn/Sts/Conf"),
		"notifiedAt":         t.now().UTC().Format(time.RFC3339),
		"sourceMsgId":        msg.GetString("RsltnOfInvstgtn/Assgnmt/Id"),
		"messageType":        iso20022.Camt029,
	}, nil
}

// apply runs one mapping table. The source message is never mutated.
func (t *Transformer) apply(src iso20022.Message, srcType, dstType string, rules []Mapping) (iso20022.Message, error) {
	dst := iso20022.Message{}
	for _, rule := range rules {
		switch rule.Op {
		case OpCopy, OpCopyRequired:
			v, ok := src.Get(rule.Src)
			if !ok {
				if rule.Op == OpCopyRequired {
					return nil, faults.Newf(faults.TransformationRequired,
						"%s requires %s but the %s source has no %s",
						dstType, rule.Dst, srcType, rule.Src)
				}
				continue
			}
			_ = dst.Set(rule.Dst, cloneValue(v))
		case OpConst:
			_ = dst.Set(rule.Dst, rule.Const)
		case OpMintMsgID:
			_ = dst.Set(rule.Dst, mintMessageID())
		case OpNow:
			_ = dst.Set(rule.Dst, t.now().UTC().Format(time.RFC3339))
		case OpUETR:
			id := iso20022.ExtractUETR(src, srcType)
			if id == "" {
				return nil, faults.Newf(faults.TransformationRequired,
					"%s requires %s but the %s source carries no UETR",
					dstType, rule.Dst, srcType)
			}
			_ = dst.Set(rule.Dst, id)
		case OpUETRRelated:
			id := iso20022.ExtractUETR(src, srcType)
			if id == "" {
				return nil, faults.Newf(faults.TransformationRequired,
					"%s requires %s but the %s source carries no UETR",
					dstType, rule.Dst, srcType)
			}
			related, err := t.gen.GenerateResponse(id, dstType)
			if err != nil {
				return nil, err
			}
			_ = dst.Set(rule.Dst, related)
		}
	}
	return dst, nil
}

// mintMessageID produces a fresh 32-char MsgId (ISO caps the field at 35).
func mintMessageID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// cloneValue deep-copies a JSON subtree so destination edits never reach
// back into the source message. Amounts stay whatever string they were.
func cloneValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(tv))
		for k, val := range tv {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, val := range tv {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
