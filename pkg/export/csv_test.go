package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
)

func TestWriteLedgerEntries(t *testing.T) {
	orderID := uuid.New()
	created := time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC)
	entries := []models.LedgerEntry{
		{
			ID:          uuid.New(),
			Type:        enums.LedgerEntryTypeCharge,
			EntityID:    orderID,
			EntityType:  enums.LedgerEntityOrder,
			AmountCents: 15000,
			Currency:    enums.CurrencyRON,
			CreatedAt:   created,
		},
		{
			ID:          uuid.New(),
			Type:        enums.LedgerEntryTypeRefund,
			EntityID:    orderID,
			EntityType:  enums.LedgerEntityOrder,
			AmountCents: -5000,
			Currency:    enums.CurrencyRON,
			CreatedAt:   created.Add(time.Hour),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLedgerEntries(&buf, entries))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"id", "type", "entity_type", "entity_id", "amount_cents", "currency", "created_at"}, records[0])
	assert.Equal(t, "CHARGE", records[1][1])
	assert.Equal(t, "order", records[1][2])
	assert.Equal(t, orderID.String(), records[1][3])
	assert.Equal(t, "15000", records[1][4])
	assert.Equal(t, "RON", records[1][5])
	assert.Equal(t, "2026-02-14T10:30:00Z", records[1][6])
	assert.Equal(t, "-5000", records[2][4])
}

func TestWriteLedgerEntriesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLedgerEntries(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestWritePayouts(t *testing.T) {
	ref := "tr_12345"
	paidAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	payouts := []models.Payout{
		{
			ID:              uuid.New(),
			SellerID:        uuid.New(),
			OrderID:         uuid.New(),
			AmountCents:     13473,
			CommissionCents: 1497,
			Currency:        enums.CurrencyRON,
			Status:          enums.PayoutStatusPaid,
			ProviderRef:     &ref,
			PaidAt:          &paidAt,
			CreatedAt:       paidAt.Add(-time.Hour),
		},
		{
			ID:          uuid.New(),
			SellerID:    uuid.New(),
			OrderID:     uuid.New(),
			AmountCents: 9900,
			Currency:    enums.CurrencyEUR,
			Status:      enums.PayoutStatusPending,
			CreatedAt:   paidAt,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePayouts(&buf, payouts))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "13473", records[1][3])
	assert.Equal(t, "1497", records[1][4])
	assert.Equal(t, "PAID", records[1][6])
	assert.Equal(t, "tr_12345", records[1][7])
	assert.Equal(t, "2026-03-01T09:00:00Z", records[1][9])

	// pending rows leave optional columns blank
	assert.Equal(t, "PENDING", records[2][6])
	assert.Equal(t, "", records[2][7])
	assert.Equal(t, "", records[2][9])
}

func TestWriteRefunds(t *testing.T) {
	reason := "insufficient_funds"
	refunds := []models.Refund{
		{
			ID:            uuid.New(),
			OrderID:       uuid.New(),
			AmountCents:   2500,
			Currency:      enums.CurrencyRON,
			Reason:        "damaged item",
			Status:        enums.RefundStatusFailed,
			FailureReason: &reason,
			CreatedAt:     time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRefunds(&buf, refunds))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "2500", records[1][2])
	assert.Equal(t, "damaged item", records[1][4])
	assert.Equal(t, "FAILED", records[1][5])
	assert.Equal(t, "insufficient_funds", records[1][7])
	assert.Equal(t, "", records[1][8])
}
