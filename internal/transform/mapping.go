package transform

// Op is one mapping operation kind.
type Op string

const (
	// OpCopy copies the source path when present; absence is tolerated.
	OpCopy Op = "copy"
	// OpCopyRequired copies the source path; absence is a
	// TransformationRequired fault naming the destination path.
	OpCopyRequired Op = "copy-required"
	// OpConst writes a fixed value.
	OpConst Op = "const"
	// OpMintMsgID writes a freshly minted message id.
	OpMintMsgID Op = "mint-msgid"
	// OpNow writes the current UTC timestamp (ISO 8601).
	OpNow Op = "now"
	// OpUETR copies the source UETR verbatim; it must be present.
	OpUETR Op = "uetr"
	// OpUETRRelated mints a related response UETR from the source UETR,
	// sharing the date and system segments.
	OpUETRRelated Op = "uetr-related"
)

// Mapping is one declarative field rule: source path, destination path,
// operation, and the constant for OpConst.
type Mapping struct {
	Src   string
	Dst   string
	Op    Op
	Const string
}

// pain001ToPacs008 maps a customer credit-transfer initiation onto the
// interbank credit transfer. The settlement method is fixed to clearing.
var pain001ToPacs008 = []Mapping{
	{Dst: "FIToFICstmrCdtTrf/GrpHdr/MsgId", Op: OpMintMsgID},
	{Dst: "FIToFICstmrCdtTrf/GrpHdr/CreDtTm", Op: OpNow},
	{Dst: "FIToFICstmrCdtTrf/GrpHdr/NbOfTxs", Op: OpConst, Const: "1"},
	{Dst: "FIToFICstmrCdtTrf/GrpHdr/SttlmInf/SttlmMtd", Op: OpConst, Const: "CLRG"},
	{Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/UETR", Op: OpUETR},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/PmtId/InstrId",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/InstrId", Op: OpCopy},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/PmtId/EndToEndId",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/EndToEndId", Op: OpCopyRequired},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/Amt/InstdAmt",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/IntrBkSttlmAmt", Op: OpCopyRequired},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/Dbtr",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/Dbtr", Op: OpCopyRequired},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/DbtrAcct",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/DbtrAcct", Op: OpCopyRequired},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/DbtrAgt",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/DbtrAgt", Op: OpCopy},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/Cdtr",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/Cdtr", Op: OpCopyRequired},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/CdtrAcct",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/CdtrAcct", Op: OpCopyRequired},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/CdtrAgt",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/CdtrAgt", Op: OpCopy},
	{Src: "CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/RmtInf",
		Dst: "FIToFICstmrCdtTrf/CdtTrfTxInf[0]/RmtInf", Op: OpCopy},
}

// pain007ToPacs007 maps a customer payment reversal onto the interbank
// reversal.
var pain007ToPacs007 = []Mapping{
	{Dst: "FIToFIPmtRvsl/GrpHdr/MsgId", Op: OpMintMsgID},
	{Dst: "FIToFIPmtRvsl/GrpHdr/CreDtTm", Op: OpNow},
	{Dst: "FIToFIPmtRvsl/GrpHdr/NbOfTxs", Op: OpConst, Const: "1"},
	{Src: "CstmrPmtRvsl/OrgnlGrpInf/OrgnlMsgId",
		Dst: "FIToFIPmtRvsl/OrgnlGrpInf/OrgnlMsgId", Op: OpCopyRequired},
	{Src: "CstmrPmtRvsl/OrgnlGrpInf/OrgnlMsgNmId",
		Dst: "FIToFIPmtRvsl/OrgnlGrpInf/OrgnlMsgNmId", Op: OpCopy},
	{Dst: "FIToFIPmtRvsl/TxInf[0]/OrgnlUETR", Op: OpUETR},
	{Src: "CstmrPmtRvsl/OrgnlPmtInfAndRvsl[0]/TxInf[0]/OrgnlEndToEndId",
		Dst: "FIToFIPmtRvsl/TxInf[0]/OrgnlEndToEndId", Op: OpCopyRequired},
	{Src: "CstmrPmtRvsl/OrgnlPmtInfAndRvsl[0]/TxInf[0]/RvsdInstdAmt",
		Dst: "FIToFIPmtRvsl/TxInf[0]/RvsdIntrBkSttlmAmt", Op: OpCopyRequired},
	{Src: "CstmrPmtRvsl/OrgnlPmtInfAndRvsl[0]/TxInf[0]/RvslRsnInf",
		Dst: "FIToFIPmtRvsl/TxInf[0]/RvslRsnInf", Op: OpCopy},
}

// camt055ToPacs007 maps a customer payment cancellation request onto the
// interbank payment reversal. The original MsgId travels in OrgnlGrpInf.
var camt055ToPacs007 = []Mapping{
	{Dst: "FIToFIPmtRvsl/GrpHdr/MsgId", Op: OpMintMsgID},
	{Dst: "FIToFIPmtRvsl/GrpHdr/CreDtTm", Op: OpNow},
	{Dst: "FIToFIPmtRvsl/GrpHdr/NbOfTxs", Op: OpConst, Const: "1"},
	{Src: "CstmrPmtCxlReq/Undrlyg[0]/OrgnlGrpInfAndCxl/OrgnlMsgId",
		Dst: "FIToFIPmtRvsl/OrgnlGrpInf/OrgnlMsgId", Op: OpCopyRequired},
	{Src: "CstmrPmtCxlReq/Undrlyg[0]/OrgnlGrpInfAndCxl/OrgnlMsgNmId",
		Dst: "FIToFIPmtRvsl/OrgnlGrpInf/OrgnlMsgNmId", Op: OpCopy},
	{Dst: "FIToFIPmtRvsl/TxInf[0]/OrgnlUETR", Op: OpUETR},
	{Src: "CstmrPmtCxlReq/Undrlyg[0]/TxInf[0]/OrgnlEndToEndId",
		Dst: "FIToFIPmtRvsl/TxInf[0]/OrgnlEndToEndId", Op: OpCopyRequired},
	{Src: "CstmrPmtCxlReq/Undrlyg[0]/TxInf[0]/OrgnlInstdAmt",
		Dst: "FIToFIPmtRvsl/TxInf[0]/RvsdIntrBkSttlmAmt", Op: OpCopyRequired},
	{Src: "CstmrPmtCxlReq/Undrlyg[0]/TxInf[0]/CxlRsnInf",
		Dst: "FIToFIPmtRvsl/TxInf[0]/RvslRsnInf", Op: OpCopy},
}

// camt056ToPacs028 maps an interbank cancellation request onto a payment
// status request chasing the original transaction.
var camt056ToPacs028 = []Mapping{
	{Dst: "FIToFIPmtStsReq/GrpHdr/MsgId", Op: OpMintMsgID},
	{Dst: "FIToFIPmtStsReq/GrpHdr/CreDtTm", Op: OpNow},
	{Src: "FIToFIPmtCxlReq/Undrlyg[0]/OrgnlGrpInfAndCxl/OrgnlMsgId",
		Dst: "FIToFIPmtStsReq/OrgnlGrpInf/OrgnlMsgId", Op: OpCopyRequired},
	{Src: "FIToFIPmtCxlReq/Undrlyg[0]/OrgnlGrpInfAndCxl/OrgnlMsgNmId",
		Dst: "FIToFIPmtStsReq/OrgnlGrpInf/OrgnlMsgNmId", Op: OpCopy},
	{Dst: "FIToFIPmtStsReq/TxInf[0]/OrgnlUETR", Op: OpUETR},
	{Src: "FIToFIPmtCxlReq/Undrlyg[0]/TxInf[0]/OrgnlEndToEndId",
		Dst: "FIToFIPmtStsReq/TxInf[0]/OrgnlEndToEndId", Op: OpCopy},
	{Src: "FIToFIPmtCxlReq/Undrlyg[0]/TxInf[0]/OrgnlTxId",
		Dst: "FIToFIPmtStsReq/TxInf[0]/OrgnlTxId", Op: OpCopy},
}

// pacs002ToPain002 shapes the interbank status report back into the customer
// status report. This is a response leg, so the UETR minted for the client
// copy is related to (not identical with) the scheme-side one.
var pacs002ToPain002 = []Mapping{
	{Dst: "CstmrPmtStsRpt/GrpHdr/MsgId", Op: OpMintMsgID},
	{Dst: "CstmrPmtStsRpt/GrpHdr/CreDtTm", Op: OpNow},
	{Src: "FIToFIPmtStsRpt/OrgnlGrpInfAndSts/OrgnlMsgId",
		Dst: "CstmrPmtStsRpt/OrgnlGrpInfAndSts/OrgnlMsgId", Op: OpCopyRequired},
	{Src: "FIToFIPmtStsRpt/OrgnlGrpInfAndSts/OrgnlMsgNmId",
		Dst: "CstmrPmtStsRpt/OrgnlGrpInfAndSts/OrgnlMsgNmId", Op: OpCopy},
	{Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/OrgnlUETR", Op: OpUETRRelated},
	{Src: "FIToFIPmtStsRpt/TxInfAndSts[0]/OrgnlEndToEndId",
		Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/OrgnlEndToEndId", Op: OpCopy},
	{Src: "FIToFIPmtStsRpt/TxInfAndSts[0]/OrgnlTxId",
		Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/OrgnlTxId", Op: OpCopy},
	{Src: "FIToFIPmtStsRpt/TxInfAndSts[0]/TxSts",
		Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/TxSts", Op: OpCopyRequired},
	{Src: "FIToFIPmtStsRpt/TxInfAndSts[0]/StsRsnInf",
		Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/StsRsnInf", Op: OpCopy},
}

// pacs004ToPain002 shapes a payment return into a rejected customer status
// report. The status is fixed to RJCT; the return reason is carried through.
var pacs004ToPain002 = []Mapping{
	{Dst: "CstmrPmtStsRpt/GrpHdr/MsgId", Op: OpMintMsgID},
	{Dst: "CstmrPmtStsRpt/GrpHdr/CreDtTm", Op: OpNow},
	{Src: "PmtRtr/OrgnlGrpInf/OrgnlMsgId",
		Dst: "CstmrPmtStsRpt/OrgnlGrpInfAndSts/OrgnlMsgId", Op: OpCopyRequired},
	{Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/OrgnlUETR", Op: OpUETRRelated},
	{Src: "PmtRtr/TxInf[0]/OrgnlEndToEndId",
		Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/OrgnlEndToEndId", Op: OpCopy},
	{Src: "PmtRtr/TxInf[0]/OrgnlTxId",
		Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/OrgnlTxId", Op: OpCopy},
	{Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/TxSts",
		Op: OpConst, Const: "RJCT"},
	{Src: "PmtRtr/TxInf[0]/RtrRsnInf",
		Dst: "CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/StsRsnInf", Op: OpCopy},
}
