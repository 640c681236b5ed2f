package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/piatahub/piata-backend/pkg/enums"
)

// LedgerEntry records an immutable signed monetary movement. Rows are only
// ever inserted; corrections are modeled as offsetting RECOVERY entries.
type LedgerEntry struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type        enums.LedgerEntryType  `gorm:"column:type;type:ledger_entry_type_enum;not null"`
	EntityID    uuid.UUID              `gorm:"column:entity_id;type:uuid;not null;index:ix_ledger_entries_entity"`
	EntityType  enums.LedgerEntityType `gorm:"column:entity_type;type:ledger_entity_type_enum;not null;index:ix_ledger_entries_entity"`
	AmountCents int64                  `gorm:"column:amount_cents;not null"`
	Currency    enums.Currency         `gorm:"column:currency;type:char(3);not null"`
	Meta        datatypes.JSON         `gorm:"column:meta;type:jsonb"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }
