package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/piatahub/piata-backend/pkg/enums"
)

// AdminAction is a row in the append-only admin audit log. Payout approval is
// recorded here rather than as a flag on the payout, so the approver identity
// stays independent of whoever later triggers the run.
type AdminAction struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Action    enums.AdminActionType `gorm:"column:action;type:admin_action_type_enum;not null;index:ix_admin_actions_action_entity"`
	ActorID   uuid.UUID             `gorm:"column:actor_id;type:uuid;not null"`
	EntityID  uuid.UUID             `gorm:"column:entity_id;type:uuid;not null;index:ix_admin_actions_action_entity"`
	Metadata  datatypes.JSON        `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (AdminAction) TableName() string { return "admin_actions" }
