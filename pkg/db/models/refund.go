package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/pkg/enums"
)

// Refund reverses part or all of a buyer charge. Same mutation ownership as
// Payout: only the refund lifecycle manager updates status.
type Refund struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index:ix_refunds_order_id"`
	AmountCents   int64              `gorm:"column:amount_cents;not null"`
	Currency      enums.Currency     `gorm:"column:currency;type:char(3);not null"`
	Reason        string             `gorm:"column:reason;type:varchar(255);not null"`
	Status        enums.RefundStatus `gorm:"column:status;type:refund_status_enum;not null;default:'PENDING'"`
	ProviderRef   *string            `gorm:"column:provider_ref;type:varchar(128)"`
	FailureReason *string            `gorm:"column:failure_reason;type:varchar(255)"`
	RefundedAt    *time.Time         `gorm:"column:refunded_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Refund) TableName() string { return "refunds" }
