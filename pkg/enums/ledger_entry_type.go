package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type_enum enum in Postgres.
type LedgerEntryType string

const (
	LedgerEntryTypeCharge     LedgerEntryType = "CHARGE"
	LedgerEntryTypeCommission LedgerEntryType = "COMMISSION"
	LedgerEntryTypePayout     LedgerEntryType = "PAYOUT"
	LedgerEntryTypeRefund     LedgerEntryType = "REFUND"
	LedgerEntryTypeRecovery   LedgerEntryType = "RECOVERY"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeCharge,
	LedgerEntryTypeCommission,
	LedgerEntryTypePayout,
	LedgerEntryTypeRefund,
	LedgerEntryTypeRecovery,
}

// String implements fmt.Stringer.
func (t LedgerEntryType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
