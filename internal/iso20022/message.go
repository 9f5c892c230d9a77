// Package iso20022 models ISO 20022 messages as JSON trees using the short
// tag names of the official schemas (GrpHdr, CstmrCdtTrfInitn, ...).
//
// The gateway never owns the exhaustive field schemas; it consults the
// published XSDs out of band. What this package provides is the structural
// plumbing the pipeline needs: path addressing into the tree, the per-type
// registry of well-known locations (UETR, MsgId, original references), and
// structural validation.
package iso20022

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message is an ISO 20022 message tree decoded from the JSON envelope.
type Message map[string]interface{}

// Parse decodes a JSON body into a message tree.
func Parse(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode message body: %w", err)
	}
	return m, nil
}

// JSON serializes the message tree.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Clone deep-copies the tree. Transformations operate on clones so source
// messages stay untouched.
func (m Message) Clone() Message {
	return deepCopyMap(m)
}

func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i, e := range t {
			cp[i] = deepCopyValue(e)
		}
		return cp
	default:
		return v
	}
}

// pathSegment is one step of a slash path, optionally indexed: "PmtInf[0]".
type pathSegment struct {
	key   string
	index int // -1 when not indexed
}

func splitPath(path string) ([]pathSegment, error) {
	raw := strings.Split(path, "/")
	segs := make([]pathSegment, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			return nil, fmt.Errorf("empty segment in path %q", path)
		}
		seg := pathSegment{key: s, index: -1}
		if open := strings.IndexByte(s, '['); open >= 0 {
			if !strings.HasSuffix(s, "]") {
				return nil, fmt.Errorf("malformed index in path segment %q", s)
			}
			idx, err := strconv.Atoi(s[open+1 : len(s)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("malformed index in path segment %q", s)
			}
			seg.key = s[:open]
			seg.index = idx
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// Get returns the value at a slash path like
// "CstmrCdtTrfInitn/PmtInf[0]/CdtTrfTxInf[0]/PmtId/UETR".
// The second return is false when any step is absent or shaped wrong.
func (m Message) Get(path string) (interface{}, bool) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	var cur interface{} = map[string]interface{}(m)
	for _, seg := range segs {
		node, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = node[seg.key]
		if !ok {
			return nil, false
		}
		if seg.index >= 0 {
			arr, ok := cur.([]interface{})
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.index]
		}
	}
	return cur, true
}

// GetString returns the string at path, or "" when absent or not a string.
func (m Message) GetString(path string) string {
	v, ok := m.Get(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Has reports whether the path resolves to any value.
func (m Message) Has(path string) bool {
	_, ok := m.Get(path)
	return ok
}

// Set writes a value at a slash path, creating intermediate objects and
// extending arrays as needed.
func (m Message) Set(path string, value interface{}) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	node := map[string]interface{}(m)
	for i, seg := range segs {
		last := i == len(segs)-1

		if seg.index < 0 {
			if last {
				node[seg.key] = value
				return nil
			}
			child, ok := node[seg.key].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				node[seg.key] = child
			}
			node = child
			continue
		}

		arr, ok := node[seg.key].([]interface{})
		if !ok {
			arr = []interface{}{}
		}
		for len(arr) <= seg.index {
			arr = append(arr, map[string]interface{}{})
		}
		node[seg.key] = arr

		if last {
			arr[seg.index] = value
			return nil
		}
		child, ok := arr[seg.index].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			arr[seg.index] = child
		}
		node = child
	}
	return nil
}
