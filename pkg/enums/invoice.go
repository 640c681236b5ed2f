package enums

import "fmt"

// InvoiceType distinguishes the documents issued per order. At most one
// non-superseded invoice exists per (order, type).
type InvoiceType string

const (
	InvoiceTypeCommission InvoiceType = "commission"
	InvoiceTypePlatform   InvoiceType = "platform"
	InvoiceTypeSeller     InvoiceType = "seller"
)

var validInvoiceTypes = []InvoiceType{
	InvoiceTypeCommission,
	InvoiceTypePlatform,
	InvoiceTypeSeller,
}

// String implements fmt.Stringer.
func (t InvoiceType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known InvoiceType.
func (t InvoiceType) IsValid() bool {
	for _, candidate := range validInvoiceTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseInvoiceType converts raw input into an InvoiceType.
func ParseInvoiceType(value string) (InvoiceType, error) {
	for _, candidate := range validInvoiceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice type %q", value)
}

// InvoiceStatus records the outcome of provider issuance.
type InvoiceStatus string

const (
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusError  InvoiceStatus = "error"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusIssued,
	InvoiceStatusError,
}

// String implements fmt.Stringer.
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known InvoiceStatus.
func (s InvoiceStatus) IsValid() bool {
	for _, candidate := range validInvoiceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
