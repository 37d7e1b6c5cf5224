package x12

import (
	"errors"
	"fmt"
)

// ErrUnknownTransactionSet is returned when no functional identifier code
// is registered for a transaction-set type.
var ErrUnknownTransactionSet = errors.New("unknown transaction set type")

// functionalIdentifierCodes maps transaction-set types to the GS01
// functional identifier code that groups them.
var functionalIdentifierCodes = map[string]string{
	"110": "IA",
	"204": "SM",
	"210": "IM",
	"214": "QM",
	"810": "IN",
	"820": "RA",
	"824": "AG",
	"830": "PS",
	"832": "SC",
	"846": "IB",
	"850": "PO",
	"855": "PR",
	"856": "SH",
	"860": "PC",
	"861": "RC",
	"864": "TX",
	"940": "OW",
	"943": "AR",
	"944": "RE",
	"945": "SW",
	"990": "GF",
	"997": "FA",
	"999": "FA",
}

// FunctionalIdentifierCode returns the GS01 code for a transaction-set
// type, or ErrUnknownTransactionSet if the type is not in the static table.
func FunctionalIdentifierCode(transactionSetType string) (string, error) {
	code, ok := functionalIdentifierCodes[transactionSetType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTransactionSet, transactionSetType)
	}
	return code, nil
}
