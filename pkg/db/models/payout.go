package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/pkg/enums"
)

// Payout schedules the transfer of funds owed to a seller for a settled
// order. Status is the only mutable surface after creation, and it is owned
// exclusively by the payout lifecycle manager.
type Payout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID        uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	CommissionCents int64              `gorm:"column:commission_cents;not null"`
	Currency        enums.Currency     `gorm:"column:currency;type:char(3);not null"`
	Status          enums.PayoutStatus `gorm:"column:status;type:payout_status_enum;not null;default:'PENDING'"`
	ProviderRef     *string            `gorm:"column:provider_ref;type:varchar(128)"`
	FailureReason   *string            `gorm:"column:failure_reason;type:varchar(255)"`
	PaidAt          *time.Time         `gorm:"column:paid_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payout) TableName() string { return "payouts" }
