package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

// ListFilter narrows a paginated payout listing.
type ListFilter struct {
	SellerID uuid.UUID
	OrderID  uuid.UUID
	Status   enums.PayoutStatus
	Cursor   *pagination.Cursor
	Limit    int
}

// Repository manages persistence for payouts. Status changes go through
// TransitionStatus so concurrent runs serialize on the row's prior state.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	Get(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	List(ctx context.Context, filter ListFilter) ([]models.Payout, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).Model(&models.Payout{})

	if filter.SellerID != uuid.Nil {
		query = query.Where("seller_id = ?", filter.SellerID)
	}
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

	var payouts []models.Payout
	if err := query.
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

// TransitionStatus performs a conditional update keyed on the expected prior
// status. When the row is no longer in one of the from states the update
// affects zero rows and the caller loses the race.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
