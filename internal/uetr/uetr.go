// Package uetr implements the gateway's end-to-end reference plane.
//
// A UETR is a 36-character identifier of the form
//
//	YYYYMMDD-SYSID-MSGTYPE-SEQ-UUID16
//
// e.g. 20250115-PE01-P008-1A2B-0123456789ABCDEF. It is minted at ingress when
// a message arrives without one, preserved verbatim through every
// transformation, and used as the primary correlation key from ingress to the
// final settlement advice.
package uetr

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pattern is the strict wire format. No trimming, no case folding.
var Pattern = regexp.MustCompile(`^[A-Z0-9]{8}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{16}$`)

// typeCodes maps ISO 20022 message types to the 4-character segment-3 code.
// pacs.002 and pain.002 get distinct codes; collapsing them would make the
// UETR unable to distinguish a scheme status from a customer status.
var typeCodes = map[string]string{
	"pain.001": "N001",
	"pain.002": "N002",
	"pain.007": "N007",
	"pacs.008": "P008",
	"pacs.002": "P002",
	"pacs.004": "P004",
	"pacs.007": "P007",
	"pacs.028": "P028",
	"camt.029": "C029",
	"camt.054": "C054",
	"camt.055": "C055",
	"camt.056": "C056",
}

const unknownTypeCode = "UNKN"

// Generator mints UETRs for one gateway instance. SystemID becomes segment 2
// of every identifier and is how related references are traced back to the
// instance that minted them.
type Generator struct {
	SystemID string
	// now is swappable for tests.
	now func() time.Time
}

// NewGenerator builds a generator. The system id is normalized to exactly
// 4 uppercase characters (padded with '0', truncated if longer).
func NewGenerator(systemID string) *Generator {
	return &Generator{SystemID: normalizeSystemID(systemID), now: time.Now}
}

func normalizeSystemID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	cleaned := make([]rune, 0, 4)
	for _, r := range id {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cleaned = append(cleaned, r)
		}
		if len(cleaned) == 4 {
			break
		}
	}
	for len(cleaned) < 4 {
		cleaned = append(cleaned, '0')
	}
	return string(cleaned)
}

// TypeCode returns the segment-3 code for a message type ("pain.001" etc).
// Unknown types map to UNKN rather than failing: minting must never block
// the hot path.
func TypeCode(messageType string) string {
	if code, ok := typeCodes[strings.ToLower(strings.TrimSpace(messageType))]; ok {
		return code
	}
	return unknownTypeCode
}

// Generate mints a fresh UETR for the given message type.
// Segment 4 is a cryptographically random 16-bit sequence in uppercase hex;
// segment 5 is the first 16 hex characters of a fresh UUID.
func (g *Generator) Generate(messageType string) string {
	date := g.now().UTC().Format("20060102")
	return fmt.Sprintf("%s-%s-%s-%s-%s", date, g.SystemID, TypeCode(messageType), randomSeq(), uuid16())
}

// GenerateResponse mints the UETR for a response leg. It re-uses the date and
// system-id segments of the original so the pair stays related, substitutes
// the response message-type code, and mints fresh sequence and uuid segments.
// This is the only legal way to produce a related UETR.
func (g *Generator) GenerateResponse(original, responseMessageType string) (string, error) {
	if !Validate(original) {
		return "", fmt.Errorf("original UETR is malformed: %q", original)
	}
	parts := strings.SplitN(original, "-", 5)
	return fmt.Sprintf("%s-%s-%s-%s-%s", parts[0], parts[1], TypeCode(responseMessageType), randomSeq(), uuid16()), nil
}

func randomSeq() string {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to the clock rather than refuse to mint.
		return strings.ToUpper(fmt.Sprintf("%04X", uint16(time.Now().UnixNano())))
	}
	return fmt.Sprintf("%04X", binary.BigEndian.Uint16(b[:]))
}

func uuid16() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:16])
}

// Validate performs the strict format check.
func Validate(candidate string) bool {
	return Pattern.MatchString(candidate)
}

// Timestamp returns the 8-character date segment, or "" if malformed.
func Timestamp(u string) string {
	if !Validate(u) {
		return ""
	}
	return u[:8]
}

// SystemID returns the 4-character system-id segment, or "" if malformed.
func SystemID(u string) string {
	if !Validate(u) {
		return ""
	}
	return u[9:13]
}

// MessageTypeCode returns the 4-character segment-3 code, or "" if malformed.
func MessageTypeCode(u string) string {
	if !Validate(u) {
		return ""
	}
	return u[14:18]
}

// AreRelated reports whether two UETRs share their first two segments
// (same date, same minting system).
func AreRelated(a, b string) bool {
	if !Validate(a) || !Validate(b) {
		return false
	}
	return a[:13] == b[:13]
}
