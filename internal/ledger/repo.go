package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

// ListFilter narrows a paginated ledger listing.
type ListFilter struct {
	EntityID   uuid.UUID
	EntityType enums.LedgerEntityType
	Type       enums.LedgerEntryType
	Cursor     *pagination.Cursor
	Limit      int
}

// Repository manages persistence for ledger entries. There is no update or
// delete surface; the table is append-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	ListByEntity(ctx context.Context, entityID uuid.UUID, entityType enums.LedgerEntityType) ([]models.LedgerEntry, error)
	List(ctx context.Context, filter ListFilter) ([]models.LedgerEntry, error)
	SumByEntityAndType(ctx context.Context, entityID uuid.UUID, entityType enums.LedgerEntityType, entryType enums.LedgerEntryType) (int64, error)
	SumRefundEntriesByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	NetCents(ctx context.Context) (int64, error)
	DirectionTotals(ctx context.Context) (in int64, out int64, err error)
	PaidPayoutsWithoutEntry(ctx context.Context) ([]uuid.UUID, error)
	RefundedWithoutEntry(ctx context.Context) ([]uuid.UUID, error)
	StuckProcessingPayouts(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	StuckProcessingRefunds(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	DuplicateEntries(ctx context.Context) ([]DuplicateGroup, error)
}

// DuplicateGroup reports more than one ledger entry for a (type, entity)
// pair that should only ever carry one.
type DuplicateGroup struct {
	Type       enums.LedgerEntryType  `json:"type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	EntityType enums.LedgerEntityType `json:"entity_type"`
	Count      int                    `json:"count"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByEntity(ctx context.Context, entityID uuid.UUID, entityType enums.LedgerEntityType) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("entity_id = ? AND entity_type = ?", entityID, entityType).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.LedgerEntry{})

	if filter.EntityID != uuid.Nil {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
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

	var entries []models.LedgerEntry
	if err := query.
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumByEntityAndType(ctx context.Context, entityID uuid.UUID, entityType enums.LedgerEntityType, entryType enums.LedgerEntryType) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("entity_id = ? AND entity_type = ? AND type = ?", entityID, entityType, entryType).
		Scan(&total).Error
	return total, err
}

// SumRefundEntriesByOrder totals REFUND entries for all refunds of an order.
// REFUND entries reference the refund row, so the order linkage goes through
// the refunds table.
func (r *repository) SumRefundEntriesByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(ledger_entries.amount_cents), 0)").
		Joins("JOIN refunds ON refunds.id = ledger_entries.entity_id").
		Where("ledger_entries.entity_type = ? AND ledger_entries.type = ? AND refunds.order_id = ?",
			enums.LedgerEntityRefund, enums.LedgerEntryTypeRefund, orderID).
		Scan(&total).Error
	return total, err
}

func (r *repository) NetCents(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) DirectionTotals(ctx context.Context) (int64, int64, error) {
	var totals struct {
		TotalIn  int64 `gorm:"column:total_in"`
		TotalOut int64 `gorm:"column:total_out"`
	}
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select(
			"COALESCE(SUM(CASE WHEN amount_cents > 0 THEN amount_cents ELSE 0 END), 0) AS total_in, " +
				"COALESCE(SUM(CASE WHEN amount_cents < 0 THEN -amount_cents ELSE 0 END), 0) AS total_out",
		).
		Scan(&totals).Error
	return totals.TotalIn, totals.TotalOut, err
}

func (r *repository) PaidPayoutsWithoutEntry(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("payouts.status = ?", enums.PayoutStatusPaid).
		Where("NOT EXISTS (SELECT 1 FROM ledger_entries le WHERE le.entity_id = payouts.id AND le.entity_type = ? AND le.type = ?)",
			enums.LedgerEntityPayout, enums.LedgerEntryTypePayout).
		Pluck("payouts.id", &ids).Error
	return ids, err
}

func (r *repository) RefundedWithoutEntry(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("refunds.status = ?", enums.RefundStatusRefunded).
		Where("NOT EXISTS (SELECT 1 FROM ledger_entries le WHERE le.entity_id = refunds.id AND le.entity_type = ? AND le.type = ?)",
			enums.LedgerEntityRefund, enums.LedgerEntryTypeRefund).
		Pluck("refunds.id", &ids).Error
	return ids, err
}

func (r *repository) StuckProcessingPayouts(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("status = ? AND updated_at < ?", enums.PayoutStatusProcessing, before).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) StuckProcessingRefunds(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("status = ? AND updated_at < ?", enums.RefundStatusProcessing, before).
		Pluck("id", &ids).Error
	return ids, err
}

// DuplicateEntries reports (type, entity) pairs holding more than one entry.
// RECOVERY is excluded because manual corrections may legitimately repeat.
func (r *repository) DuplicateEntries(ctx context.Context) ([]DuplicateGroup, error) {
	var groups []DuplicateGroup
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("type, entity_id, entity_type, COUNT(*) AS count").
		Where("type <> ?", enums.LedgerEntryTypeRecovery).
		Group("type, entity_id, entity_type").
		Having("COUNT(*) > 1").
		Scan(&groups).Error
	return groups, err
}
