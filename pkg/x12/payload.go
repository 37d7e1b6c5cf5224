package x12

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Guide JSON field names for the ST header. These follow the element
// naming convention of generated transaction-set guides.
const (
	stHeaderKey       = "transaction_set_header_ST"
	identifierCodeKey = "transaction_set_identifier_code_01"
	controlNumberKey  = "transaction_set_control_number_02"
)

var (
	// ErrEmptyPayload is returned when an event carries no transaction sets.
	ErrEmptyPayload = errors.New("payload contains no transaction sets")
	// ErrMixedTransactionSets is returned when a payload embeds more than
	// one distinct transaction-set identifier code.
	ErrMixedTransactionSets = errors.New("payload mixes transaction set types")
	// ErrNoTransactionSetType is returned when the type is neither given
	// explicitly nor derivable from the payload.
	ErrNoTransactionSetType = errors.New("transaction set type not determinable")
	// ErrControlNumberSequence is returned when embedded transaction-set
	// control numbers are not exactly 1..N in order.
	ErrControlNumberSequence = errors.New("transaction set control numbers out of sequence")
)

// TransactionSet is one guide-shaped business document instance. The
// heading/detail/summary areas stay loosely typed; only the ST header
// fields are interpreted here.
type TransactionSet struct {
	Heading map[string]any `json:"heading,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
	Summary map[string]any `json:"summary,omitempty"`
}

// Payload is the validated form of an event payload: an ordered sequence
// of transaction sets. The ingress boundary accepts either a single
// transaction-set object or an array of them; downstream code only ever
// sees the normalized slice.
type Payload []TransactionSet

// UnmarshalJSON accepts both payload shapes.
func (p *Payload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var sets []TransactionSet
		if err := json.Unmarshal(data, &sets); err != nil {
			return err
		}
		*p = sets
		return nil
	}
	var single TransactionSet
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*p = Payload{single}
	return nil
}

// IdentifierCode reads the embedded ST01 transaction-set identifier code,
// if present.
func (t TransactionSet) IdentifierCode() (string, bool) {
	header, ok := t.stHeader()
	if !ok {
		return "", false
	}
	code, ok := header[identifierCodeKey].(string)
	return code, ok && code != ""
}

// ControlNumber reads the embedded ST02 control number, if present.
// Guides serialize it as either a JSON string or a number.
func (t TransactionSet) ControlNumber() (int, bool) {
	header, ok := t.stHeader()
	if !ok {
		return 0, false
	}
	switch v := header[controlNumberKey].(type) {
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

func (t TransactionSet) stHeader() (map[string]any, bool) {
	header, ok := t.Heading[stHeaderKey].(map[string]any)
	return header, ok
}

// DeriveType determines the transaction-set type for a payload. An
// explicit type wins; otherwise every embedded identifier code must agree
// on exactly one value.
func (p Payload) DeriveType(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if len(p) == 0 {
		return "", ErrEmptyPayload
	}
	distinct := make(map[string]struct{})
	for _, ts := range p {
		if code, ok := ts.IdentifierCode(); ok {
			distinct[code] = struct{}{}
		}
	}
	switch len(distinct) {
	case 0:
		return "", ErrNoTransactionSetType
	case 1:
		for code := range distinct {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: found %d distinct identifier codes", ErrMixedTransactionSets, len(distinct))
}

// ValidateControlNumbers requires the Nth (1-based) transaction set to
// carry control number N exactly. Interchanges with duplicated or gapped
// ST02 values collide at the receiver, so any deviation is rejected.
func (p Payload) ValidateControlNumbers() error {
	if len(p) == 0 {
		return ErrEmptyPayload
	}
	for i, ts := range p {
		want := i + 1
		got, ok := ts.ControlNumber()
		if !ok {
			return fmt.Errorf("%w: transaction set %d has no control number", ErrControlNumberSequence, want)
		}
		if got != want {
			return fmt.Errorf("%w: transaction set %d has control number %d", ErrControlNumberSequence, want, got)
		}
	}
	return nil
}

// ConsistentTypes verifies the invariant that all embedded identifier
// codes, when present, are identical. Payloads violating it are rejected
// before any delivery attempt.
func (p Payload) ConsistentTypes() error {
	var seen string
	for _, ts := range p {
		code, ok := ts.IdentifierCode()
		if !ok {
			continue
		}
		if seen == "" {
			seen = code
			continue
		}
		if code != seen {
			return fmt.Errorf("%w: %q and %q", ErrMixedTransactionSets, seen, code)
		}
	}
	return nil
}
