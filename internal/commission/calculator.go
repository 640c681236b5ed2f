package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
)

// MaxBps is the full order value expressed in basis points.
const MaxBps = 10000

// LineInput is one commission-bearing order line.
type LineInput struct {
	Qty            int   `json:"qty"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	DiscountCents  int64 `json:"discount_cents"`
	CommissionBps  int   `json:"commission_bps"`
}

// LineResult is the per-line split between platform and seller.
// SubtotalCents is the gross line value before discount.
type LineResult struct {
	SubtotalCents   int64 `json:"subtotal_cents"`
	DiscountCents   int64 `json:"discount_cents"`
	CommissionCents int64 `json:"commission_cents"`
	SellerDueCents  int64 `json:"seller_due_cents"`
}

// Breakdown sums the per-line results over a whole order. The identity
// SubtotalCents - DiscountCents == CommissionCents + SellerDueCents holds
// exactly; rounding remainders land on the platform side.
type Breakdown struct {
	Lines           []LineResult `json:"lines"`
	SubtotalCents   int64        `json:"subtotal_cents"`
	DiscountCents   int64        `json:"discount_cents"`
	CommissionCents int64        `json:"commission_cents"`
	SellerDueCents  int64        `json:"seller_due_cents"`
}

var bpsDivisor = decimal.NewFromInt(MaxBps)

// CalculateLine splits one line at the given rate. Commission is charged on
// the gross line value (qty * unit price) and rounded half up to the nearest
// cent; the discount comes out of the seller's side only, so
// sellerDue = subtotal - discount - commission.
func CalculateLine(input LineInput) (LineResult, error) {
	if err := validateLine(input); err != nil {
		return LineResult{}, err
	}

	subtotal := int64(input.Qty) * input.UnitPriceCents

	raw := decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromInt(int64(input.CommissionBps))).
		Div(bpsDivisor)
	fee := raw.Round(0).IntPart()

	sellerDue := subtotal - input.DiscountCents - fee
	if sellerDue < 0 {
		fee = subtotal - input.DiscountCents
		sellerDue = 0
	}

	return LineResult{
		SubtotalCents:   subtotal,
		DiscountCents:   input.DiscountCents,
		CommissionCents: fee,
		SellerDueCents:  sellerDue,
	}, nil
}

// Calculate runs CalculateLine over every line and totals the results.
func Calculate(lines []LineInput) (*Breakdown, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}

	breakdown := &Breakdown{Lines: make([]LineResult, 0, len(lines))}
	for i, line := range lines {
		result, err := CalculateLine(line)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("line %d", i))
		}
		breakdown.Lines = append(breakdown.Lines, result)
		breakdown.SubtotalCents += result.SubtotalCents
		breakdown.DiscountCents += result.DiscountCents
		breakdown.CommissionCents += result.CommissionCents
		breakdown.SellerDueCents += result.SellerDueCents
	}
	return breakdown, nil
}

func validateLine(input LineInput) error {
	if input.Qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
	}
	if input.UnitPriceCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
	}
	if input.DiscountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount must not be negative")
	}
	if input.DiscountCents > int64(input.Qty)*input.UnitPriceCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds line value")
	}
	if input.CommissionBps < 0 || input.CommissionBps > MaxBps {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("commission bps must be within [0, %d]", MaxBps))
	}
	return nil
}
