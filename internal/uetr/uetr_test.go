package uetr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedGenerator(systemID string) *Generator {
	g := NewGenerator(systemID)
	g.now = func() time.Time {
		return time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	}
	return g
}

func TestGenerateMatchesPattern(t *testing.T) {
	g := fixedGenerator("PE01")

	id := g.Generate("pain.001")
	require.True(t, Validate(id), "generated UETR %q must match the wire format", id)
	assert.Len(t, id, 40)
	assert.Equal(t, "20250115", Timestamp(id))
	assert.Equal(t, "PE01", SystemID(id))
	assert.Equal(t, "N001", MessageTypeCode(id))
}

func TestGenerateUnknownTypeUsesUnknownCode(t *testing.T) {
	g := fixedGenerator("PE01")
	id := g.Generate("pacs.999")
	assert.Equal(t, "UNKN", MessageTypeCode(id))
}

func TestGenerateIsUnique(t *testing.T) {
	g := fixedGenerator("PE01")
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := g.Generate("pacs.008")
		assert.False(t, seen[id], "duplicate UETR %q", id)
		seen[id] = true
	}
}

func TestSystemIDNormalization(t *testing.T) {
	assert.Equal(t, "AB00", NewGenerator("ab").SystemID)
	assert.Equal(t, "ABCD", NewGenerator("abcdef").SystemID)
	assert.Equal(t, "A1B2", NewGenerator(" a1-b2 ").SystemID)
	assert.Equal(t, "0000", NewGenerator("").SystemID)
}

func TestGenerateResponseSharesPrefix(t *testing.T) {
	g := fixedGenerator("PE01")
	original := g.Generate("pacs.008")

	response, err := g.GenerateResponse(original, "pain.002")
	require.NoError(t, err)
	require.True(t, Validate(response))

	assert.Equal(t, original[:13], response[:13], "date and system segments must match")
	assert.Equal(t, "N002", MessageTypeCode(response))
	assert.NotEqual(t, original, response)
	assert.True(t, AreRelated(original, response))
}

func TestGenerateResponseRejectsMalformedOriginal(t *testing.T) {
	g := fixedGenerator("PE01")
	_, err := g.GenerateResponse("not-a-uetr", "pain.002")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.True(t, Validate("20250115-PE01-P008-1A2B-0123456789ABCDEF"))

	for _, bad := range []string{
		"",
		"20250115-PE01-P008-1A2B-0123456789ABCDE",   // short tail
		"20250115-PE01-P008-1A2B-0123456789ABCDEFG", // long tail
		"20250115-pe01-P008-1A2B-0123456789ABCDEF",  // lowercase
		" 20250115-PE01-P008-1A2B-0123456789ABCDEF", // leading space
		"20250115_PE01_P008_1A2B_0123456789ABCDEF",  // wrong separator
	} {
		assert.False(t, Validate(bad), "expected %q to be rejected", bad)
	}
}

func TestSegmentAccessorsOnMalformedInput(t *testing.T) {
	assert.Empty(t, Timestamp("garbage"))
	assert.Empty(t, SystemID("garbage"))
	assert.Empty(t, MessageTypeCode("garbage"))
}

func TestAreRelated(t *testing.T) {
	a := "20250115-PE01-P008-1A2B-0123456789ABCDEF"
	b := "20250115-PE01-N002-9F3C-FEDCBA9876543210"
	c := "20250116-PE01-P008-1A2B-0123456789ABCDEF"

	assert.True(t, AreRelated(a, b))
	assert.False(t, AreRelated(a, c), "different dates are unrelated")
	assert.False(t, AreRelated(a, "garbage"))
}
