package flow

import (
	"time"

	"github.com/clearfab/gateway/internal/iso20022"
)

// Group statuses used in shaped PAIN.002 acknowledgements.
const (
	groupStatusAccepted        = "ACCP"
	groupStatusAcceptedPending = "ACTC"
	groupStatusRejected        = "RJCT"
)

// shapePain002 builds the customer status report the gateway answers with:
// a PAIN.002 echoing the original message id, carrying the flow's UETR and
// the given group status.
func shapePain002(msgID, originalMsgID, originalType, uetr, status string, now time.Time) iso20022.Message {
	m := iso20022.Message{}
	_ = m.Set("CstmrPmtStsRpt/GrpHdr/MsgId", msgID)
	_ = m.Set("CstmrPmtStsRpt/GrpHdr/CreDtTm", now.UTC().Format(time.RFC3339))
	_ = m.Set("CstmrPmtStsRpt/OrgnlGrpInfAndSts/OrgnlMsgId", originalMsgID)
	_ = m.Set("CstmrPmtStsRpt/OrgnlGrpInfAndSts/OrgnlMsgNmId", originalType)
	_ = m.Set("CstmrPmtStsRpt/OrgnlGrpInfAndSts/GrpSts", status)
	if uetr != "" {
		_ = m.Set("CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/OrgnlUETR", uetr)
	}
	return m
}
