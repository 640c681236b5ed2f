package approvals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
)

// Repository manages the append-only admin action log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, action *models.AdminAction) error
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.AdminAction, error)
	ExistsExcludingActor(ctx context.Context, action enums.AdminActionType, entityID uuid.UUID, excludedActor uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an admin action repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, action *models.AdminAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

func (r *repository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.AdminAction, error) {
	var actions []models.AdminAction
	if err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at ASC, id ASC").
		Find(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *repository) ExistsExcludingActor(ctx context.Context, action enums.AdminActionType, entityID uuid.UUID, excludedActor uuid.UUID) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).
		Model(&models.AdminAction{}).
		Where("action = ? AND entity_id = ?", action, entityID)
	if excludedActor != uuid.Nil {
		query = query.Where("actor_id <> ?", excludedActor)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
