package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ShippingRuleSet stores one version of the shipping fee rules as a whole
// JSON document. Publishing a new version deactivates the previous one in the
// same transaction, so readers always observe a complete document.
type ShippingRuleSet struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Version   int            `gorm:"column:version;not null;uniqueIndex:ux_shipping_rule_sets_version"`
	Active    bool           `gorm:"column:active;not null;default:false"`
	Document  datatypes.JSON `gorm:"column:document;type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (ShippingRuleSet) TableName() string { return "shipping_rule_sets" }
