package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

func setupRefundTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	refunds := `
CREATE TABLE IF NOT EXISTS refunds (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL,
  reason TEXT NOT NULL,
  status TEXT NOT NULL,
  provider_ref TEXT,
  failure_reason TEXT,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	orderItems := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  category_slug TEXT,
  qty INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  subtotal_cents INTEGER NOT NULL,
  commission_bps INTEGER NOT NULL,
  commission_amount_cents INTEGER NOT NULL,
  seller_due_cents INTEGER NOT NULL,
  refunded_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(refunds).Error)
	require.NoError(t, db.Exec(orderItems).Error)

	// the shared in-memory db persists across tests in this package
	require.NoError(t, db.Exec("DELETE FROM refunds").Error)
	require.NoError(t, db.Exec("DELETE FROM order_items").Error)
	return db
}

func createRefund(t *testing.T, db *gorm.DB, orderID uuid.UUID, status enums.RefundStatus, created time.Time) *models.Refund {
	t.Helper()

	refund := &models.Refund{
		ID:          uuid.New(),
		OrderID:     orderID,
		AmountCents: 5000,
		Currency:    enums.CurrencyRON,
		Reason:      "damaged item",
		Status:      status,
		CreatedAt:   created,
	}
	require.NoError(t, db.Create(refund).Error)
	return refund
}

func createOrderItem(t *testing.T, db *gorm.DB, orderID uuid.UUID, subtotal int64, created time.Time) *models.OrderItem {
	t.Helper()

	item := &models.OrderItem{
		ID:             uuid.New(),
		OrderID:        orderID,
		ProductName:    "ceramic mug",
		Qty:            1,
		UnitPriceCents: subtotal,
		SubtotalCents:  subtotal,
		CommissionBps:  1000,
		CreatedAt:      created,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestRefundRepository_CreateAndGet(t *testing.T) {
	db := setupRefundTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created := createRefund(t, db, uuid.New(), enums.RefundStatusPending, time.Now().UTC())

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, got.OrderID)
	assert.Equal(t, enums.RefundStatusPending, got.Status)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRefundRepository_ListFiltersAndCursor(t *testing.T) {
	db := setupRefundTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	orderID := uuid.New()
	first := createRefund(t, db, orderID, enums.RefundStatusRefunded, base)
	second := createRefund(t, db, orderID, enums.RefundStatusPending, base.Add(time.Second))
	createRefund(t, db, uuid.New(), enums.RefundStatusPending, base.Add(2*time.Second))

	byOrder, err := repo.List(ctx, ListFilter{OrderID: orderID})
	require.NoError(t, err)
	require.Len(t, byOrder, 2)
	assert.Equal(t, first.ID, byOrder[0].ID)
	assert.Equal(t, second.ID, byOrder[1].ID)

	pending, err := repo.List(ctx, ListFilter{OrderID: orderID, Status: enums.RefundStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	cursor := &pagination.Cursor{CreatedAt: first.CreatedAt, ID: first.ID}
	afterFirst, err := repo.List(ctx, ListFilter{OrderID: orderID, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, afterFirst, 1)
	assert.Equal(t, second.ID, afterFirst[0].ID)
}

func TestRefundRepository_TransitionStatus(t *testing.T) {
	db := setupRefundTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	refund := createRefund(t, db, uuid.New(), enums.RefundStatusPending, time.Now().UTC())

	claimed, err := repo.TransitionStatus(ctx, refund.ID,
		[]enums.RefundStatus{enums.RefundStatusPending, enums.RefundStatusFailed},
		enums.RefundStatusProcessing, nil)
	require.NoError(t, err)
	assert.True(t, claimed)

	// second claim from PENDING loses
	claimed, err = repo.TransitionStatus(ctx, refund.ID,
		[]enums.RefundStatus{enums.RefundStatusPending},
		enums.RefundStatusProcessing, nil)
	require.NoError(t, err)
	assert.False(t, claimed)

	refundedAt := time.Now().UTC()
	moved, err := repo.TransitionStatus(ctx, refund.ID,
		[]enums.RefundStatus{enums.RefundStatusProcessing},
		enums.RefundStatusRefunded,
		map[string]any{"provider_ref": "mock_ref_1", "refunded_at": refundedAt})
	require.NoError(t, err)
	assert.True(t, moved)

	got, err := repo.Get(ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusRefunded, got.Status)
	require.NotNil(t, got.ProviderRef)
	assert.Equal(t, "mock_ref_1", *got.ProviderRef)
	require.NotNil(t, got.RefundedAt)
}

func TestRefundRepository_OrderItems(t *testing.T) {
	db := setupRefundTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	orderID := uuid.New()
	first := createOrderItem(t, db, orderID, 6000, base)
	second := createOrderItem(t, db, orderID, 9000, base.Add(time.Second))
	createOrderItem(t, db, uuid.New(), 100, base)

	items, err := repo.ListOrderItems(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)

	require.NoError(t, repo.SetItemRefunded(ctx, first.ID, 2500))

	items, err = repo.ListOrderItems(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), items[0].RefundedCents)
	assert.Equal(t, int64(0), items[1].RefundedCents)
}
