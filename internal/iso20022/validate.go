package iso20022

import (
	"regexp"
	"strconv"

	"github.com/clearfab/gateway/internal/faults"
)

// amountPattern is the lexical shape of an ISO decimal amount. Amounts stay
// strings end-to-end; the gateway never parses them into floats because
// scale must survive every hop.
var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,5})?$`)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidationResult carries non-fatal schema warnings. Structural failures
// are returned as a fault instead.
type ValidationResult struct {
	Warnings []string
}

// Validate checks a message against the structural expectations for its
// type. Missing required paths are fatal (ValidationFailed); advisory
// findings (odd currency codes, suspicious amount lexemes) come back as
// warnings that the flow engine attaches to record metadata.
func Validate(m Message, messageType string) (*ValidationResult, error) {
	spec, ok := SpecFor(messageType)
	if !ok {
		return nil, faults.Newf(faults.ValidationFailed, "unsupported message type %q", messageType)
	}
	if !m.Has(spec.Root) {
		return nil, faults.Newf(faults.ValidationFailed, "missing root element %s", spec.Root)
	}
	for _, path := range spec.Required {
		if !m.Has(path) {
			return nil, faults.Newf(faults.ValidationFailed, "missing required element %s", path)
		}
	}

	result := &ValidationResult{}
	result.Warnings = append(result.Warnings, amountWarnings(m, spec.Root)...)
	return result, nil
}

// amountWarnings walks the tree looking for amount-shaped leaves
// ({"Ccy": ..., "Amt"/"Value": ...} or InstdAmt-style objects) and flags
// lexical oddities without failing the message.
func amountWarnings(m Message, root string) []string {
	var warnings []string
	node, ok := m.Get(root)
	if !ok {
		return nil
	}
	walkAmounts(node, root, &warnings)
	return warnings
}

func walkAmounts(node interface{}, path string, warnings *[]string) {
	switch t := node.(type) {
	case map[string]interface{}:
		ccy, hasCcy := t["Ccy"].(string)
		if hasCcy {
			if !currencyPattern.MatchString(ccy) {
				*warnings = append(*warnings, "non-ISO currency code at "+path+": "+ccy)
			}
			for _, valueKey := range []string{"Value", "Amt", "#text"} {
				if raw, ok := t[valueKey].(string); ok && !amountPattern.MatchString(raw) {
					*warnings = append(*warnings, "suspicious amount lexeme at "+path+": "+raw)
				}
			}
		}
		for k, v := range t {
			walkAmounts(v, path+"/"+k, warnings)
		}
	case []interface{}:
		for i, v := range t {
			walkAmounts(v, path+"["+strconv.Itoa(i)+"]", warnings)
		}
	}
}
