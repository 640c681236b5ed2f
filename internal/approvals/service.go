package approvals

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
)

// Service records admin actions and answers approval queries. Rows are never
// updated or deleted, so the log doubles as the payout approval source of
// truth: approval is "an approval row by someone other than the runner
// exists", not a flag on the payout.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AdminAction, error)
	HasApproval(ctx context.Context, payoutID uuid.UUID, runnerID uuid.UUID) (bool, error)
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.AdminAction, error)
}

type service struct {
	repo Repository
}

// RecordInput captures one admin action for the audit log.
type RecordInput struct {
	Action   enums.AdminActionType `json:"action"`
	ActorID  uuid.UUID             `json:"actor_id"`
	EntityID uuid.UUID             `json:"entity_id"`
	Metadata json.RawMessage       `json:"metadata"`
}

// NewService wires an approvals service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("approvals repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AdminAction, error) {
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid admin action %q", input.Action))
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if input.EntityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}

	action := &models.AdminAction{
		Action:   input.Action,
		ActorID:  input.ActorID,
		EntityID: input.EntityID,
		Metadata: []byte(input.Metadata),
	}
	if err := s.repo.WithTx(tx).Create(ctx, action); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording admin action")
	}
	return action, nil
}

// HasApproval reports whether someone other than runnerID approved the
// payout. An admin approving their own run does not count.
func (s *service) HasApproval(ctx context.Context, payoutID uuid.UUID, runnerID uuid.UUID) (bool, error) {
	if payoutID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	return s.repo.ExistsExcludingActor(ctx, enums.AdminActionPayoutApproved, payoutID, runnerID)
}

func (s *service) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.AdminAction, error) {
	if entityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	return s.repo.ListByEntity(ctx, entityID)
}
