package iso20022

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePain001(t *testing.T, id string) Message {
	t.Helper()
	m, err := Parse([]byte(`{
		"CstmrCdtTrfInitn": {
			"GrpHdr": {"MsgId": "MSG-001", "CreDtTm": "2025-01-15T10:00:00Z"},
			"PmtInf": [{
				"DbtrAcct": {"Id": {"IBAN": "GB29NWBK60161331926819"}},
				"CdtTrfTxInf": [{
					"PmtId": {"EndToEndId": "E2E-1", "UETR": "` + id + `"},
					"Amt": {"InstdAmt": {"Ccy": "GBP", "Value": "100.00"}},
					"CdtrAcct": {"Id": {"IBAN": "GB29NWBK60161331926820"}}
				}]
			}]
		}
	}`))
	require.NoError(t, err)
	return m
}

const wellFormedUETR = "20250115-PE01-P008-1A2B-0123456789ABCDEF"

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"CstmrCdtTrfInitn": `))
	assert.Error(t, err)
}

func TestGetWithIndexedPath(t *testing.T) {
	m := samplePain001(t, wellFormedUETR)

	v, ok := m.Get("CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/PmtId/UETR")
	require.True(t, ok)
	assert.Equal(t, wellFormedUETR, v)

	assert.Equal(t, "MSG-001", m.GetString("CstmrCdtTrfInitn/GrpHdr/MsgId"))
}

func TestGetMissesCleanly(t *testing.T) {
	m := samplePain001(t, wellFormedUETR)

	_, ok := m.Get("CstmrCdtTrfInitn/PmtInf[1]")
	assert.False(t, ok, "out-of-range index must miss, not panic")

	_, ok = m.Get("CstmrCdtTrfInitn/NoSuchChild/Deeper")
	assert.False(t, ok)

	_, ok = m.Get("CstmrCdtTrfInitn/GrpHdr/MsgId/TooDeep")
	assert.False(t, ok, "descending through a leaf must miss")

	_, ok = m.Get("CstmrCdtTrfInitn/PmtInf[x]")
	assert.False(t, ok, "malformed index must miss")
}

func TestSetCreatesIntermediateStructure(t *testing.T) {
	m := Message{}
	require.NoError(t, m.Set("FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/UETR", wellFormedUETR))

	v, ok := m.Get("FIToFICstmrCdtTrf/CdtTrfTxInf[0]/PmtId/UETR")
	require.True(t, ok)
	assert.Equal(t, wellFormedUETR, v)
}

func TestSetExtendsArrays(t *testing.T) {
	m := Message{}
	require.NoError(t, m.Set("Doc/Items[2]/Name", "third"))

	arr, ok := m.Get("Doc/Items")
	require.True(t, ok)
	assert.Len(t, arr, 3)
	assert.Equal(t, "third", m.GetString("Doc/Items[2]/Name"))
}

func TestSetOverwritesExisting(t *testing.T) {
	m := samplePain001(t, wellFormedUETR)
	require.NoError(t, m.Set("CstmrCdtTrfInitn/GrpHdr/MsgId", "MSG-002"))
	assert.Equal(t, "MSG-002", m.GetString("CstmrCdtTrfInitn/GrpHdr/MsgId"))
}

func TestCloneIsIndependent(t *testing.T) {
	m := samplePain001(t, wellFormedUETR)
	cp := m.Clone()

	require.NoError(t, cp.Set("CstmrCdtTrfInitn/GrpHdr/MsgId", "MUTATED"))

	assert.Equal(t, "MSG-001", m.GetString("CstmrCdtTrfInitn/GrpHdr/MsgId"))
	assert.Equal(t, "MUTATED", cp.GetString("CstmrCdtTrfInitn/GrpHdr/MsgId"))
}

func TestExtractUETR(t *testing.T) {
	m := samplePain001(t, wellFormedUETR)
	assert.Equal(t, wellFormedUETR, ExtractUETR(m, Pain001))
}

func TestExtractUETRIgnoresMalformed(t *testing.T) {
	m := samplePain001(t, "not-a-uetr")
	assert.Empty(t, ExtractUETR(m, Pain001), "malformed reference is treated as absent")
}

func TestExtractUETRUnknownType(t *testing.T) {
	m := samplePain001(t, wellFormedUETR)
	assert.Empty(t, ExtractUETR(m, "pain.999"))
}

func TestExtractUETRFromStatusReport(t *testing.T) {
	m, err := Parse([]byte(`{
		"FIToFIPmtStsRpt": {
			"GrpHdr": {"MsgId": "STS-1"},
			"TxInfAndSts": [{"OrgnlUETR": "` + wellFormedUETR + `", "TxSts": "ACCP"}]
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, wellFormedUETR, ExtractUETR(m, Pacs002))
}

func TestMessageID(t *testing.T) {
	m := samplePain001(t, wellFormedUETR)
	assert.Equal(t, "MSG-001", MessageID(m, Pain001))
	assert.Empty(t, MessageID(m, "nope"))
}

func TestKnownType(t *testing.T) {
	assert.True(t, KnownType("pain.001"))
	assert.True(t, KnownType(" PACS.008 "))
	assert.False(t, KnownType("pain.013"))
}
