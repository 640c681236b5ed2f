package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is the commission-bearing line of an order. The commission fields
// are computed once at order placement; RefundedCents accumulates per-item
// refund allocations and never exceeds the original charge for the line.
type OrderItem struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductName           string    `gorm:"column:product_name;type:varchar(255);not null"`
	CategorySlug          string    `gorm:"column:category_slug;type:varchar(128)"`
	Qty                   int       `gorm:"column:qty;not null"`
	UnitPriceCents        int64     `gorm:"column:unit_price_cents;not null"`
	DiscountCents         int64     `gorm:"column:discount_cents;not null;default:0"`
	SubtotalCents         int64     `gorm:"column:subtotal_cents;not null"`
	CommissionBps         int       `gorm:"column:commission_bps;not null"`
	CommissionAmountCents int64     `gorm:"column:commission_amount_cents;not null"`
	SellerDueCents        int64     `gorm:"column:seller_due_cents;not null"`
	RefundedCents         int64     `gorm:"column:refunded_cents;not null;default:0"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }
