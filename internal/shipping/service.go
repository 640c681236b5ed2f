package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/internal/approvals"
	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages shipping rule versions and fee computation against the
// active version.
type Service interface {
	ActiveRules(ctx context.Context) (*Rules, int, error)
	Publish(ctx context.Context, input PublishInput) (*models.ShippingRuleSet, error)
	Preview(ctx context.Context, input ComputeInput) (int64, error)
	History(ctx context.Context) ([]models.ShippingRuleSet, error)
}

type service struct {
	repo  Repository
	tx    txRunner
	audit approvals.Service
}

// PublishInput carries a new rules document plus the admin publishing it.
type PublishInput struct {
	Document Rules     `json:"document"`
	ActorID  uuid.UUID `json:"actor_id"`
}

// NewService wires a shipping service and validates its dependencies.
func NewService(repo Repository, tx txRunner, audit approvals.Service) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("shipping repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if audit == nil {
		return nil, fmt.Errorf("approvals service required")
	}
	return &service{repo: repo, tx: tx, audit: audit}, nil
}

// ActiveRules returns the decoded active document and its version. When no
// version has been published yet it returns an empty document at version 0,
// which computes a zero fee for everything.
func (s *service) ActiveRules(ctx context.Context) (*Rules, int, error) {
	ruleSet, err := s.repo.Active(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Rules{}, 0, nil
	}
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading active shipping rules")
	}

	var rules Rules
	if err := json.Unmarshal(ruleSet.Document, &rules); err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding shipping rules document")
	}
	return &rules, ruleSet.Version, nil
}

// Publish stores the document as the next version and activates it. The
// deactivation of the previous version and the insert share one transaction,
// so readers switch between complete documents.
func (s *service) Publish(ctx context.Context, input PublishInput) (*models.ShippingRuleSet, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if err := input.Document.Validate(); err != nil {
		return nil, err
	}

	document, err := json.Marshal(input.Document)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding shipping rules document")
	}

	var ruleSet *models.ShippingRuleSet
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		maxVersion, err := repo.MaxVersion(ctx)
		if err != nil {
			return err
		}
		if err := repo.DeactivateAll(ctx); err != nil {
			return err
		}

		ruleSet = &models.ShippingRuleSet{
			Version:  maxVersion + 1,
			Active:   true,
			Document: document,
		}
		if err := repo.Create(ctx, ruleSet); err != nil {
			return err
		}

		_, err = s.audit.Record(ctx, tx, approvals.RecordInput{
			Action:   enums.AdminActionRulesPublished,
			ActorID:  input.ActorID,
			EntityID: ruleSet.ID,
			Metadata: json.RawMessage(fmt.Sprintf(`{"version":%d}`, ruleSet.Version)),
		})
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "publishing shipping rules")
	}
	return ruleSet, nil
}

// Preview computes the fee the active rules would charge for the input.
func (s *service) Preview(ctx context.Context, input ComputeInput) (int64, error) {
	if input.SubtotalCents < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must not be negative")
	}
	if input.WeightKg < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "weight must not be negative")
	}

	rules, _, err := s.ActiveRules(ctx)
	if err != nil {
		return 0, err
	}
	return ComputeFee(*rules, input), nil
}

func (s *service) History(ctx context.Context) ([]models.ShippingRuleSet, error) {
	return s.repo.List(ctx)
}
