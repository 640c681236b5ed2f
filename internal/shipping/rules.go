package shipping

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
)

// Rules is one full version of the shipping fee configuration. The document
// is read as a whole per computation; publishing swaps the active version
// atomically, so readers never observe a partial update.
type Rules struct {
	BaseFeeCents       int64              `json:"base_fee_cents"`
	FreeThresholdCents int64              `json:"free_threshold_cents"`
	PerKgFeeCents      int64              `json:"per_kg_fee_cents"`
	Tiers              []Tier             `json:"tiers,omitempty"`
	SellerOverrides    []SellerOverride   `json:"seller_overrides,omitempty"`
	CategoryOverrides  []CategoryOverride `json:"category_overrides,omitempty"`
}

// Tier replaces the base fee when the subtotal falls inside its band. Tiers
// are evaluated in document order and the first match wins.
type Tier struct {
	MinSubtotalCents int64 `json:"min_subtotal_cents"`
	MaxSubtotalCents int64 `json:"max_subtotal_cents"`
	FeeCents         int64 `json:"fee_cents"`
}

// SellerOverride replaces the base fee and/or free threshold for one seller.
type SellerOverride struct {
	SellerID           uuid.UUID `json:"seller_id"`
	BaseFeeCents       *int64    `json:"base_fee_cents,omitempty"`
	FreeThresholdCents *int64    `json:"free_threshold_cents,omitempty"`
}

// CategoryOverride replaces the fee and/or free threshold when the order
// carries an item in the category.
type CategoryOverride struct {
	CategorySlug       string `json:"category_slug"`
	FeeCents           *int64 `json:"fee_cents,omitempty"`
	FreeThresholdCents *int64 `json:"free_threshold_cents,omitempty"`
}

// ComputeInput carries the order facts the fee depends on.
type ComputeInput struct {
	SubtotalCents int64     `json:"subtotal_cents"`
	WeightKg      float64   `json:"weight_kg"`
	SellerID      uuid.UUID `json:"seller_id"`
	CategorySlugs []string  `json:"category_slugs"`
}

// perKgFreeWeight is the weight included in the base fee.
const perKgFreeWeight = 1.0

// ComputeFee resolves the shipping fee for an order. Resolution order: base
// values, then a seller override, then category overrides (minimum fee and
// minimum threshold among matches, favoring the buyer), then the first
// matching subtotal tier, then the per-kg surcharge for weight above 1kg,
// and finally the free-shipping threshold which zeroes everything.
// The function is pure; identical inputs always produce identical fees.
func ComputeFee(rules Rules, input ComputeInput) int64 {
	fee := rules.BaseFeeCents
	threshold := rules.FreeThresholdCents

	if input.SellerID != uuid.Nil {
		for _, override := range rules.SellerOverrides {
			if override.SellerID != input.SellerID {
				continue
			}
			if override.BaseFeeCents != nil {
				fee = *override.BaseFeeCents
			}
			if override.FreeThresholdCents != nil {
				threshold = *override.FreeThresholdCents
			}
			break
		}
	}

	if len(input.CategorySlugs) > 0 && len(rules.CategoryOverrides) > 0 {
		slugs := make(map[string]struct{}, len(input.CategorySlugs))
		for _, slug := range input.CategorySlugs {
			slugs[slug] = struct{}{}
		}

		var minFee, minThreshold *int64
		for _, override := range rules.CategoryOverrides {
			if _, ok := slugs[override.CategorySlug]; !ok {
				continue
			}
			if override.FeeCents != nil && (minFee == nil || *override.FeeCents < *minFee) {
				minFee = override.FeeCents
			}
			if override.FreeThresholdCents != nil && (minThreshold == nil || *override.FreeThresholdCents < *minThreshold) {
				minThreshold = override.FreeThresholdCents
			}
		}
		if minFee != nil {
			fee = *minFee
		}
		if minThreshold != nil {
			threshold = *minThreshold
		}
	}

	for _, tier := range rules.Tiers {
		if input.SubtotalCents >= tier.MinSubtotalCents && input.SubtotalCents <= tier.MaxSubtotalCents {
			fee = tier.FeeCents
			break
		}
	}

	if input.WeightKg > perKgFreeWeight && rules.PerKgFeeCents > 0 {
		surcharge := decimal.NewFromFloat(input.WeightKg - perKgFreeWeight).
			Mul(decimal.NewFromInt(rules.PerKgFeeCents)).
			Round(0).IntPart()
		fee += surcharge
	}

	if threshold > 0 && input.SubtotalCents >= threshold {
		return 0
	}
	if fee < 0 {
		return 0
	}
	return fee
}

// Validate rejects documents that could produce nonsensical fees.
func (r Rules) Validate() error {
	if r.BaseFeeCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "base fee must not be negative")
	}
	if r.FreeThresholdCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "free threshold must not be negative")
	}
	if r.PerKgFeeCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "per-kg fee must not be negative")
	}

	for i, tier := range r.Tiers {
		if tier.MinSubtotalCents < 0 || tier.MaxSubtotalCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("tier %d: bounds must not be negative", i))
		}
		if tier.MinSubtotalCents > tier.MaxSubtotalCents {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("tier %d: min exceeds max", i))
		}
		if tier.FeeCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("tier %d: fee must not be negative", i))
		}
	}

	seenSellers := make(map[uuid.UUID]struct{}, len(r.SellerOverrides))
	for i, override := range r.SellerOverrides {
		if override.SellerID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("seller override %d: seller id is required", i))
		}
		if _, ok := seenSellers[override.SellerID]; ok {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("seller override %d: duplicate seller %s", i, override.SellerID))
		}
		seenSellers[override.SellerID] = struct{}{}
		if override.BaseFeeCents != nil && *override.BaseFeeCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("seller override %d: base fee must not be negative", i))
		}
		if override.FreeThresholdCents != nil && *override.FreeThresholdCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("seller override %d: free threshold must not be negative", i))
		}
	}

	seenCategories := make(map[string]struct{}, len(r.CategoryOverrides))
	for i, override := range r.CategoryOverrides {
		if override.CategorySlug == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("category override %d: slug is required", i))
		}
		if _, ok := seenCategories[override.CategorySlug]; ok {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("category override %d: duplicate category %q", i, override.CategorySlug))
		}
		seenCategories[override.CategorySlug] = struct{}{}
		if override.FeeCents != nil && *override.FeeCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("category override %d: fee must not be negative", i))
		}
		if override.FreeThresholdCents != nil && *override.FreeThresholdCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("category override %d: free threshold must not be negative", i))
		}
	}

	return nil
}
