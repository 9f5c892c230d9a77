package iso20022

import (
	"strings"

	"github.com/clearfab/gateway/internal/uetr"
)

// Well-known message type identifiers. The gateway keys everything off the
// family.version prefix ("pain.001"), not the full XSD identifier.
const (
	Pain001 = "pain.001"
	Pain002 = "pain.002"
	Pain007 = "pain.007"
	Pacs008 = "pacs.008"
	Pacs002 = "pacs.002"
	Pacs004 = "pacs.004"
	Pacs007 = "pacs.007"
	Pacs028 = "pacs.028"
	Camt029 = "camt.029"
	Camt054 = "camt.054"
	Camt055 = "camt.055"
	Camt056 = "camt.056"
)

// TypeSpec describes the structural facts the pipeline needs per type.
type TypeSpec struct {
	// Root is the single top-level element of the message.
	Root string
	// UETRPaths are the candidate locations of the end-to-end reference,
	// checked in order. Inbound response types carry it as OrgnlUETR.
	UETRPaths []string
	// MsgIDPath locates GrpHdr/MsgId.
	MsgIDPath string
	// Required lists structural paths whose absence is fatal on inbound
	// validation. Business-field completeness is the XSD's job, not ours.
	Required []string
	// Inbound marks scheme->client message types.
	Inbound bool
}

var typeSpecs = map[string]TypeSpec{
	Pain001: {
		Root: "CstmrCdtTrfInitn",
		UETRPaths: []string{
			"CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/PmtId/UETR",
		},
		MsgIDPath: "CstmrCdtTrfInitn/GrpHdr/MsgId",
		Required: []string{
			"CstmrCdtTrfInitn/GrpHdr/MsgId",
			"CstmrCdtTrfInitn/PmtInf[0]/DbtrAcct/Id",
			"CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/CdtrAcct/Id",
			"CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/Amt/InstdAmt",
		},
	},
	Pain007: {
		Root: "CstmrPmtRvsl",
		UETRPaths: []string{
			"CstmrPmtRvsl/OrgnlPmtInfAndRvsl[0]/TxInf[0]/OrgnlUETR",
		},
		MsgIDPath: "CstmrPmtRvsl/GrpHdr/MsgId",
		Required: []string{
			"CstmrPmtRvsl/GrpHdr/MsgId",
			"CstmrPmtRvsl/OrgnlGrpInf/OrgnlMsgId",
		},
	},
	Camt055: {
		Root: "CstmrPmtCxlReq",
		UETRPaths: []string{
			"CstmrPmtCxlReq/Undrlyg[0]/OrgnlPmtInfAndCxl[0]/TxInf[0]/OrgnlUETR",
		},
		MsgIDPath: "CstmrPmtCxlReq/Assgnmt/Id",
		Required: []string{
			"CstmrPmtCxlReq/Assgnmt/Id",
			"CstmrPmtCxlReq/Undrlyg[0]/OrgnlPmtInfAndCxl[0]/OrgnlPmtInfId",
		},
	},
	Camt056: {
		Root: "FIToFIPmtCxlReq",
		UETRPaths: []string{
			"FIToFIPmtCxlReq/Undrlyg[0]/TxInf[0]/OrgnlUETR",
		},
		MsgIDPath: "FIToFIPmtCxlReq/Assgnmt/Id",
		Required: []string{
			"FIToFIPmtCxlReq/Assgnmt/Id",
			"FIToFIPmtCxlReq/Undrlyg[0]/TxInf[0]/OrgnlInstrId",
		},
	},
	Pacs008: {
		Root: "FIToFICstmrCdtTrf",
		UETRPaths: []string{
			"FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/UETR",
		},
		MsgIDPath: "FIToFICstmrCdtTrf/GrpHdr/MsgId",
		Required: []string{
			"FIToFICstmrCdtTrf/GrpHdr/MsgId",
			"FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/EndToEndId",
			"FIToFICstmrCdtTrf/CdtTrfTxInf[0]/IntrBkSttlmAmt",
		},
		Inbound: true, // incoming credits arrive as pacs.008 too
	},
	Pacs007: {
		Root:      "FIToFIPmtRvsl",
		UETRPaths: []string{"FIToFIPmtRvsl/TxInf[0]/OrgnlUETR"},
		MsgIDPath: "FIToFIPmtRvsl/GrpHdr/MsgId",
		Required: []string{
			"FIToFIPmtRvsl/GrpHdr/MsgId",
		},
	},
	Pacs028: {
		Root:      "FIToFIPmtStsReq",
		UETRPaths: []string{"FIToFIPmtStsReq/TxInf[0]/OrgnlUETR"},
		MsgIDPath: "FIToFIPmtStsReq/GrpHdr/MsgId",
		Required: []string{
			"FIToFIPmtStsReq/GrpHdr/MsgId",
		},
	},
	Pacs002: {
		Root: "FIToFIPmtStsRpt",
		UETRPaths: []string{
			"FIToFIPmtStsRpt/TxInfAndSts[0]/OrgnlUETR",
			"FIToFIPmtStsRpt/TxInfAndSts[0]/OrgnlTxId/OrgnlUETR",
		},
		MsgIDPath: "FIToFIPmtStsRpt/GrpHdr/MsgId",
		Required: []string{
			"FIToFIPmtStsRpt/GrpHdr/MsgId",
			"FIToFIPmtStsRpt/TxInfAndSts[0]",
		},
		Inbound: true,
	},
	Pain002: {
		Root: "CstmrPmtStsRpt",
		UETRPaths: []string{
			"CstmrPmtStsRpt/OrgnlPmtInfAndSts[0]/TxInfAndSts[0]/OrgnlUETR",
		},
		MsgIDPath: "CstmrPmtStsRpt/GrpHdr/MsgId",
		Required: []string{
			"CstmrPmtStsRpt/GrpHdr/MsgId",
		},
	},
	Pacs004: {
		Root: "PmtRtr",
		UETRPaths: []string{
			"PmtRtr/TxInf[0]/OrgnlUETR",
		},
		MsgIDPath: "PmtRtr/GrpHdr/MsgId",
		Required: []string{
			"PmtRtr/GrpHdr/MsgId",
			"PmtRtr/TxInf[0]",
		},
		Inbound: true,
	},
	Camt029: {
		Root: "RsltnOfInvstgtn",
		UETRPaths: []string{
			"RsltnOfInvstgtn/CxlDtls[0]/TxInfAndSts[0]/OrgnlUETR",
		},
		MsgIDPath: "RsltnOfInvstgtn/Assgnmt/Id",
		Required: []string{
			"RsltnOfInvstgtn/Assgnmt/Id",
		},
		Inbound: true,
	},
	Camt054: {
		Root: "BkToCstmrDbtCdtNtfctn",
		UETRPaths: []string{
			"BkToCstmrDbtCdtNtfctn/Ntfctn[0]/Ntry[0]/NtryDtls[0]/TxDtls[0]/Refs/UETR",
		},
		MsgIDPath: "BkToCstmrDbtCdtNtfctn/GrpHdr/MsgId",
		Required: []string{
			"BkToCstmrDbtCdtNtfctn/GrpHdr/MsgId",
			"BkToCstmrDbtCdtNtfctn/Ntfctn[0]/Ntry[0]",
		},
		Inbound: true,
	},
}

// SpecFor returns the registered spec for a message type.
func SpecFor(messageType string) (TypeSpec, bool) {
	spec, ok := typeSpecs[strings.ToLower(strings.TrimSpace(messageType))]
	return spec, ok
}

// KnownType reports whether the gateway has a registered spec for this type.
func KnownType(messageType string) bool {
	_, ok := SpecFor(messageType)
	return ok
}

// ExtractUETR performs the structural lookup at the type's documented
// location(s). It returns "" on absence or malformation; the caller mints a
// fresh identifier instead.
func ExtractUETR(m Message, messageType string) string {
	spec, ok := SpecFor(messageType)
	if !ok {
		return ""
	}
	for _, path := range spec.UETRPaths {
		if v := m.GetString(path); v != "" && uetr.Validate(v) {
			return v
		}
	}
	return ""
}

// MessageID returns the message's own GrpHdr identifier, "" when absent.
func MessageID(m Message, messageType string) string {
	spec, ok := SpecFor(messageType)
	if !ok {
		return ""
	}
	return m.GetString(spec.MsgIDPath)
}
