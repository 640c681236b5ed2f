package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/pkg/enums"
)

// Order captures the economic snapshot taken at placement time. Commission
// rates on its items are frozen then and never recomputed.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID          uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID         uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null;default:'placed'"`
	Currency         enums.Currency    `gorm:"column:currency;type:char(3);not null"`
	SubtotalCents    int64             `gorm:"column:subtotal_cents;not null"`
	DiscountCents    int64             `gorm:"column:discount_cents;not null;default:0"`
	ShippingFeeCents int64             `gorm:"column:shipping_fee_cents;not null;default:0"`
	TotalCents       int64             `gorm:"column:total_cents;not null"`
	CommissionBps    int               `gorm:"column:commission_bps;not null"`
	WeightKg         float64           `gorm:"column:weight_kg;not null;default:0"`
	DeliveredAt      *time.Time        `gorm:"column:delivered_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }
