package refunds

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

// ListFilter narrows a paginated refund listing.
type ListFilter struct {
	OrderID uuid.UUID
	Status  enums.RefundStatus
	Cursor  *pagination.Cursor
	Limit   int
}

// Repository manages persistence for refunds and the per-item refund
// allocations on order lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, refund *models.Refund) error
	Get(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	List(ctx context.Context, filter ListFilter) ([]models.Refund, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.RefundStatus, to enums.RefundStatus, updates map[string]any) (bool, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	SetItemRefunded(ctx context.Context, itemID uuid.UUID, refundedCents int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a refund repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).First(&refund, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Refund, error) {
	query := r.db.WithContext(ctx).Model(&models.Refund{})

	if filter.OrderID != uuid.Nil {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"(created_at > ?) OR (created_at = ? AND id > ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID,
		)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	var refunds []models.Refund
	if err := query.
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}

// TransitionStatus performs a conditional update keyed on the expected prior
// status, mirroring the payout concurrency guard.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.RefundStatus, to enums.RefundStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) SetItemRefunded(ctx context.Context, itemID uuid.UUID, refundedCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Update("refunded_cents", refundedCents).Error
}
