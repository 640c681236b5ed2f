package enums

import "fmt"

// AdminActionType labels rows in the append-only admin action audit log.
type AdminActionType string

const (
	AdminActionPayoutApproved     AdminActionType = "payout_approved"
	AdminActionPayoutRun          AdminActionType = "payout_run"
	AdminActionRefundRequested    AdminActionType = "refund_requested"
	AdminActionRefundRun          AdminActionType = "refund_run"
	AdminActionRulesPublished     AdminActionType = "shipping_rules_published"
	AdminActionInvoiceRegenerated AdminActionType = "invoice_regenerated"
)

var validAdminActionTypes = []AdminActionType{
	AdminActionPayoutApproved,
	AdminActionPayoutRun,
	AdminActionRefundRequested,
	AdminActionRefundRun,
	AdminActionRulesPublished,
	AdminActionInvoiceRegenerated,
}

// String implements fmt.Stringer.
func (t AdminActionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known AdminActionType.
func (t AdminActionType) IsValid() bool {
	for _, candidate := range validAdminActionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAdminActionType converts raw input into an AdminActionType.
func ParseAdminActionType(value string) (AdminActionType, error) {
	for _, candidate := range validAdminActionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid admin action type %q", value)
}
