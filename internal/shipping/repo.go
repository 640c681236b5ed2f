package shipping

import (
	"context"

	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/pkg/db/models"
)

// Repository manages persistence for versioned shipping rule documents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Active(ctx context.Context) (*models.ShippingRuleSet, error)
	GetByVersion(ctx context.Context, version int) (*models.ShippingRuleSet, error)
	MaxVersion(ctx context.Context) (int, error)
	DeactivateAll(ctx context.Context) error
	Create(ctx context.Context, ruleSet *models.ShippingRuleSet) error
	List(ctx context.Context) ([]models.ShippingRuleSet, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a shipping rules repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Active(ctx context.Context) (*models.ShippingRuleSet, error) {
	var ruleSet models.ShippingRuleSet
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		First(&ruleSet).Error; err != nil {
		return nil, err
	}
	return &ruleSet, nil
}

func (r *repository) GetByVersion(ctx context.Context, version int) (*models.ShippingRuleSet, error) {
	var ruleSet models.ShippingRuleSet
	if err := r.db.WithContext(ctx).
		Where("version = ?", version).
		First(&ruleSet).Error; err != nil {
		return nil, err
	}
	return &ruleSet, nil
}

func (r *repository) MaxVersion(ctx context.Context) (int, error) {
	var version int
	err := r.db.WithContext(ctx).
		Model(&models.ShippingRuleSet{}).
		Select("COALESCE(MAX(version), 0)").
		Scan(&version).Error
	return version, err
}

func (r *repository) DeactivateAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&models.ShippingRuleSet{}).
		Where("active = ?", true).
		Update("active", false).Error
}

func (r *repository) Create(ctx context.Context, ruleSet *models.ShippingRuleSet) error {
	return r.db.WithContext(ctx).Create(ruleSet).Error
}

func (r *repository) List(ctx context.Context) ([]models.ShippingRuleSet, error) {
	var ruleSets []models.ShippingRuleSet
	if err := r.db.WithContext(ctx).
		Order("version DESC").
		Find(&ruleSets).Error; err != nil {
		return nil, err
	}
	return ruleSets, nil
}
