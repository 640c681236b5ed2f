package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/internal/approvals"
	"github.com/piatahub/piata-backend/internal/ledger"
	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/metrics"
	"github.com/piatahub/piata-backend/pkg/pagination"
	"github.com/piatahub/piata-backend/pkg/payment"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the payout lifecycle: PENDING, PROCESSING, then PAID or
// FAILED. PAID is terminal; FAILED may be retried with AllowFailed.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Payout, error)
	Approve(ctx context.Context, payoutID, actorID uuid.UUID) (*models.AdminAction, error)
	Run(ctx context.Context, input RunInput) (*models.Payout, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	List(ctx context.Context, input ListInput) (*Page, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   ledger.Service
	audit    approvals.Service
	provider payment.Provider
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
}

// CreateInput captures the money split frozen onto a new payout.
type CreateInput struct {
	OrderID         uuid.UUID      `json:"order_id"`
	SellerID        uuid.UUID      `json:"seller_id"`
	AmountCents     int64          `json:"amount_cents"`
	CommissionCents int64          `json:"commission_cents"`
	Currency        enums.Currency `json:"currency"`
}

// RunInput identifies the payout to execute and who triggered it.
type RunInput struct {
	PayoutID    uuid.UUID `json:"payout_id"`
	RunnerID    uuid.UUID `json:"runner_id"`
	AllowFailed bool      `json:"allow_failed"`
}

// ListInput holds cursor pagination plus optional payout filters.
type ListInput struct {
	SellerID uuid.UUID
	OrderID  uuid.UUID
	Status   enums.PayoutStatus
	Limit    int
	Cursor   string
}

// Page is one page of payouts plus the cursor for the next one.
type Page struct {
	Payouts    []models.Payout `json:"payouts"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// NewService wires a payout service and validates its dependencies.
func NewService(repo Repository, tx txRunner, ledgerSvc ledger.Service, audit approvals.Service, provider payment.Provider, m *metrics.SettlementMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if audit == nil {
		return nil, fmt.Errorf("approvals service required")
	}
	if provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		ledger:   ledgerSvc,
		audit:    audit,
		provider: provider,
		metrics:  m,
		logg:     logg,
	}, nil
}

// Create inserts a PENDING payout. No ledger entry is written until the
// provider confirms the transfer.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Payout, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.CommissionCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission must not be negative")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}

	payout := &models.Payout{
		OrderID:         input.OrderID,
		SellerID:        input.SellerID,
		AmountCents:     input.AmountCents,
		CommissionCents: input.CommissionCents,
		Currency:        input.Currency,
		Status:          enums.PayoutStatusPending,
	}
	if err := s.repo.Create(ctx, payout); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating payout")
	}
	return payout, nil
}

// Approve records the second-person approval for a payout. The approval row
// is independent of the payout itself; Run later requires one authored by
// someone other than the runner.
func (s *service) Approve(ctx context.Context, payoutID, actorID uuid.UUID) (*models.AdminAction, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}

	payout, err := s.getPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == enums.PayoutStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "payout already paid")
	}

	return s.audit.Record(ctx, nil, approvals.RecordInput{
		Action:   enums.AdminActionPayoutApproved,
		ActorID:  actorID,
		EntityID: payoutID,
	})
}

// Run executes an approved payout against the payment provider. Re-running a
// PAID payout is an idempotent success; a concurrent run loses the
// conditional PROCESSING claim and backs off without a provider call.
func (s *service) Run(ctx context.Context, input RunInput) (*models.Payout, error) {
	if input.PayoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	if input.RunnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "runner id is required")
	}

	ctx = s.logg.WithActorID(ctx, input.RunnerID.String())

	payout, err := s.getPayout(ctx, input.PayoutID)
	if err != nil {
		return nil, err
	}

	switch payout.Status {
	case enums.PayoutStatusPaid:
		return payout, nil
	case enums.PayoutStatusProcessing:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "payout run already in progress")
	case enums.PayoutStatusFailed:
		if !input.AllowFailed {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout failed; retry requires allow_failed")
		}
	}

	approved, err := s.audit.HasApproval(ctx, payout.ID, input.RunnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking payout approval")
	}
	if !approved {
		return nil, pkgerrors.New(pkgerrors.CodeApprovalMissing, "payout requires an approval by another admin")
	}

	claimed, err := s.repo.TransitionStatus(ctx, payout.ID,
		[]enums.PayoutStatus{payout.Status}, enums.PayoutStatusProcessing, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming payout for processing")
	}
	if !claimed {
		// lost the race: someone else moved the row first
		current, err := s.getPayout(ctx, payout.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == enums.PayoutStatusPaid {
			return current, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "payout claimed by a concurrent run")
	}

	if _, err := s.audit.Record(ctx, nil, approvals.RecordInput{
		Action:   enums.AdminActionPayoutRun,
		ActorID:  input.RunnerID,
		EntityID: payout.ID,
	}); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("recording payout run action: %v", err))
	}

	started := time.Now()
	result, providerErr := s.provider.ExecutePayout(ctx, payout)
	s.metrics.ObserveProviderCall("payout", time.Since(started))

	if providerErr != nil {
		return nil, s.failPayout(ctx, payout, providerErr)
	}
	return s.settlePayout(ctx, payout, result)
}

func (s *service) failPayout(ctx context.Context, payout *models.Payout, providerErr error) error {
	reason := payment.FailureReason(providerErr)
	s.metrics.IncFailure("payout")
	s.logg.Error(ctx, fmt.Sprintf("payout %s provider call failed: %s", payout.ID, reason), providerErr)

	if _, err := s.repo.TransitionStatus(ctx, payout.ID,
		[]enums.PayoutStatus{enums.PayoutStatusProcessing}, enums.PayoutStatusFailed,
		map[string]any{"failure_reason": reason}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking payout failed")
	}
	return pkgerrors.Wrap(pkgerrors.CodeProvider, providerErr, "executing payout")
}

// settlePayout commits the PAID transition together with its ledger entries.
// The conditional update inside the transaction keeps a crashed or duplicate
// runner from double-writing.
func (s *service) settlePayout(ctx context.Context, payout *models.Payout, result payment.Result) (*models.Payout, error) {
	paidAt := time.Now().UTC()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).TransitionStatus(ctx, payout.ID,
			[]enums.PayoutStatus{enums.PayoutStatusProcessing}, enums.PayoutStatusPaid,
			map[string]any{
				"provider_ref": result.ProviderRef,
				"paid_at":      paidAt,
			})
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout left PROCESSING before settlement")
		}

		meta, _ := json.Marshal(map[string]string{
			"order_id":     payout.OrderID.String(),
			"seller_id":    payout.SellerID.String(),
			"provider_ref": result.ProviderRef,
		})
		if _, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:        enums.LedgerEntryTypePayout,
			EntityID:    payout.ID,
			EntityType:  enums.LedgerEntityPayout,
			AmountCents: -payout.AmountCents,
			Currency:    payout.Currency,
			Meta:        meta,
		}); err != nil {
			return err
		}

		if payout.CommissionCents > 0 {
			commissionMeta, _ := json.Marshal(map[string]string{"payout_id": payout.ID.String()})
			if _, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
				Type:        enums.LedgerEntryTypeCommission,
				EntityID:    payout.OrderID,
				EntityType:  enums.LedgerEntityOrder,
				AmountCents: payout.CommissionCents,
				Currency:    payout.Currency,
				Meta:        commissionMeta,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settling payout")
	}

	s.metrics.IncSuccess("payout")
	payout.Status = enums.PayoutStatusPaid
	payout.ProviderRef = &result.ProviderRef
	payout.PaidAt = &paidAt
	return payout, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	return s.getPayout(ctx, id)
}

func (s *service) getPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payout")
	}
	return payout, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*Page, error) {
	if input.Status != "" && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payout status %q", input.Status))
	}

	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	payouts, err := s.repo.List(ctx, ListFilter{
		SellerID: input.SellerID,
		OrderID:  input.OrderID,
		Status:   input.Status,
		Cursor:   cursor,
		Limit:    limit + 1,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing payouts")
	}

	page := &Page{Payouts: payouts}
	if len(payouts) > limit {
		page.Payouts = payouts[:limit]
		last := page.Payouts[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}
