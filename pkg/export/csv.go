package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/piatahub/piata-backend/pkg/db/models"
)

// CSV projections of settlement rows. Pure read-side formatting; nothing here
// touches engine state.

// WriteLedgerEntries streams ledger rows as CSV.
func WriteLedgerEntries(w io.Writer, entries []models.LedgerEntry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "type", "entity_type", "entity_id", "amount_cents", "currency", "created_at"}); err != nil {
		return err
	}
	for _, entry := range entries {
		record := []string{
			entry.ID.String(),
			entry.Type.String(),
			entry.EntityType.String(),
			entry.EntityID.String(),
			strconv.FormatInt(entry.AmountCents, 10),
			entry.Currency.String(),
			entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WritePayouts streams payout rows as CSV.
func WritePayouts(w io.Writer, payouts []models.Payout) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "seller_id", "order_id", "amount_cents", "commission_cents", "currency", "status", "provider_ref", "failure_reason", "paid_at", "created_at"}); err != nil {
		return err
	}
	for _, payout := range payouts {
		record := []string{
			payout.ID.String(),
			payout.SellerID.String(),
			payout.OrderID.String(),
			strconv.FormatInt(payout.AmountCents, 10),
			strconv.FormatInt(payout.CommissionCents, 10),
			payout.Currency.String(),
			payout.Status.String(),
			derefString(payout.ProviderRef),
			derefString(payout.FailureReason),
			formatTimePtr(payout.PaidAt),
			payout.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteRefunds streams refund rows as CSV.
func WriteRefunds(w io.Writer, refunds []models.Refund) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "order_id", "amount_cents", "currency", "reason", "status", "provider_ref", "failure_reason", "refunded_at", "created_at"}); err != nil {
		return err
	}
	for _, refund := range refunds {
		record := []string{
			refund.ID.String(),
			refund.OrderID.String(),
			strconv.FormatInt(refund.AmountCents, 10),
			refund.Currency.String(),
			refund.Reason,
			refund.Status.String(),
			derefString(refund.ProviderRef),
			derefString(refund.FailureReason),
			formatTimePtr(refund.RefundedAt),
			refund.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
