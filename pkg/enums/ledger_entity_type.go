package enums

import "fmt"

// LedgerEntityType identifies the entity a ledger entry references.
type LedgerEntityType string

const (
	LedgerEntityOrder    LedgerEntityType = "order"
	LedgerEntityPayout   LedgerEntityType = "payout"
	LedgerEntityRefund   LedgerEntityType = "refund"
	LedgerEntitySeller   LedgerEntityType = "seller"
	LedgerEntityPlatform LedgerEntityType = "platform"
)

var validLedgerEntityTypes = []LedgerEntityType{
	LedgerEntityOrder,
	LedgerEntityPayout,
	LedgerEntityRefund,
	LedgerEntitySeller,
	LedgerEntityPlatform,
}

// String implements fmt.Stringer.
func (t LedgerEntityType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known LedgerEntityType.
func (t LedgerEntityType) IsValid() bool {
	for _, candidate := range validLedgerEntityTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntityType converts raw input into a LedgerEntityType.
func ParseLedgerEntityType(value string) (LedgerEntityType, error) {
	for _, candidate := range validLedgerEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entity type %q", value)
}
