package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/pkg/enums"
)

// Invoice records the provider-issued document for an order. At most one
// non-superseded row exists per (order_id, type); an errored invoice is
// regenerated in place rather than duplicated.
type Invoice struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_invoices_order_type"`
	Type         enums.InvoiceType   `gorm:"column:type;type:invoice_type_enum;not null;uniqueIndex:ux_invoices_order_type"`
	Status       enums.InvoiceStatus `gorm:"column:status;type:invoice_status_enum;not null;default:'issued'"`
	Series       string              `gorm:"column:series;type:varchar(32)"`
	Number       string              `gorm:"column:number;type:varchar(64)"`
	PDFURL       string              `gorm:"column:pdf_url;type:varchar(512)"`
	TotalCents   int64               `gorm:"column:total_cents;not null"`
	Currency     enums.Currency      `gorm:"column:currency;type:char(3);not null"`
	ErrorMessage *string             `gorm:"column:error_message;type:varchar(255)"`
	IssuedAt     *time.Time          `gorm:"column:issued_at"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Invoice) TableName() string { return "invoices" }
