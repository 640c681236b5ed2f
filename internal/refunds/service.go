package refunds

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

// Service drives the refund lifecycle: PENDING, PROCESSING, then REFUNDED or
// FAILED (retryable). Requests are capped by the order's remaining refundable
// balance so an order can never be refunded past what was charged.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.Refund, error)
	Run(ctx context.Context, input RunInput) (*models.Refund, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	List(ctx context.Context, input ListInput) (*Page, error)
	RefundableCents(ctx context.Context, orderID uuid.UUID) (int64, error)
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

// RequestInput captures a new refund request.
type RequestInput struct {
	OrderID     uuid.UUID      `json:"order_id"`
	AmountCents int64          `json:"amount_cents"`
	Currency    enums.Currency `json:"currency"`
	Reason      string         `json:"reason"`
	ActorID     uuid.UUID      `json:"actor_id"`
}

// RunInput identifies the refund to execute and who triggered it.
type RunInput struct {
	RefundID    uuid.UUID `json:"refund_id"`
	RunnerID    uuid.UUID `json:"runner_id"`
	AllowFailed bool      `json:"allow_failed"`
}

// ListInput holds cursor pagination plus optional refund filters.
type ListInput struct {
	OrderID uuid.UUID
	Status  enums.RefundStatus
	Limit   int
	Cursor  string
}

// Page is one page of refunds plus the cursor for the next one.
type Page struct {
	Refunds    []models.Refund `json:"refunds"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// NewService wires a refund service and validates its dependencies.
func NewService(repo Repository, tx txRunner, ledgerSvc ledger.Service, audit approvals.Service, provider payment.Provider, m *metrics.SettlementMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("refund repository required")
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

// RefundableCents is the order's remaining refundable balance: everything
// charged minus everything already refunded (REFUNDED rows only; a pending
// request does not reserve balance).
func (s *service) RefundableCents(ctx context.Context, orderID uuid.UUID) (int64, error) {
	charged, err := s.ledger.ChargedCents(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing charges")
	}
	refunded, err := s.ledger.RefundedCents(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing refunds")
	}
	return charged - refunded, nil
}

// Request validates the amount against the refundable balance and inserts a
// PENDING refund. No provider call and no ledger entry happen here.
func (s *service) Request(ctx context.Context, input RequestInput) (*models.Refund, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}

	refundable, err := s.RefundableCents(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.AmountCents > refundable {
		return nil, pkgerrors.New(pkgerrors.CodeOverRefund,
			fmt.Sprintf("requested %d exceeds refundable balance %d", input.AmountCents, refundable))
	}

	refund := &models.Refund{
		OrderID:     input.OrderID,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
		Reason:      input.Reason,
		Status:      enums.RefundStatusPending,
	}
	if err := s.repo.Create(ctx, refund); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating refund")
	}

	if _, err := s.audit.Record(ctx, nil, approvals.RecordInput{
		Action:   enums.AdminActionRefundRequested,
		ActorID:  input.ActorID,
		EntityID: refund.ID,
	}); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("recording refund request action: %v", err))
	}
	return refund, nil
}

// Run executes a refund against the payment provider. The PENDING/FAILED to
// PROCESSING claim is conditional so concurrent runs serialize to one
// provider call; re-running a REFUNDED refund is an idempotent success.
func (s *service) Run(ctx context.Context, input RunInput) (*models.Refund, error) {
	if input.RefundID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id is required")
	}
	if input.RunnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "runner id is required")
	}

	ctx = s.logg.WithActorID(ctx, input.RunnerID.String())

	refund, err := s.getRefund(ctx, input.RefundID)
	if err != nil {
		return nil, err
	}

	switch refund.Status {
	case enums.RefundStatusRefunded:
		return refund, nil
	case enums.RefundStatusProcessing:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "refund run already in progress")
	case enums.RefundStatusFailed:
		if !input.AllowFailed {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refund failed; retry requires allow_failed")
		}
	}

	// The balance is checked again here: other refunds for the order may
	// have settled since this one was requested, and a pending request
	// does not reserve balance.
	refundable, err := s.RefundableCents(ctx, refund.OrderID)
	if err != nil {
		return nil, err
	}
	if refund.AmountCents > refundable {
		return nil, pkgerrors.New(pkgerrors.CodeOverRefund,
			fmt.Sprintf("refund of %d exceeds remaining refundable balance %d", refund.AmountCents, refundable))
	}

	claimed, err := s.repo.TransitionStatus(ctx, refund.ID,
		[]enums.RefundStatus{refund.Status}, enums.RefundStatusProcessing, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming refund for processing")
	}
	if !claimed {
		current, err := s.getRefund(ctx, refund.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == enums.RefundStatusRefunded {
			return current, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "refund claimed by a concurrent run")
	}

	if _, err := s.audit.Record(ctx, nil, approvals.RecordInput{
		Action:   enums.AdminActionRefundRun,
		ActorID:  input.RunnerID,
		EntityID: refund.ID,
	}); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("recording refund run action: %v", err))
	}

	started := time.Now()
	result, providerErr := s.provider.ExecuteRefund(ctx, refund)
	s.metrics.ObserveProviderCall("refund", time.Since(started))

	if providerErr != nil {
		return nil, s.failRefund(ctx, refund, providerErr)
	}
	return s.settleRefund(ctx, refund, result)
}

func (s *service) failRefund(ctx context.Context, refund *models.Refund, providerErr error) error {
	reason := payment.FailureReason(providerErr)
	s.metrics.IncFailure("refund")
	s.logg.Error(ctx, fmt.Sprintf("refund %s provider call failed: %s", refund.ID, reason), providerErr)

	if _, err := s.repo.TransitionStatus(ctx, refund.ID,
		[]enums.RefundStatus{enums.RefundStatusProcessing}, enums.RefundStatusFailed,
		map[string]any{"failure_reason": reason}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking refund failed")
	}
	return pkgerrors.Wrap(pkgerrors.CodeProvider, providerErr, "executing refund")
}

// settleRefund commits the REFUNDED transition, its ledger entry, and the
// per-item allocation in one transaction.
func (s *service) settleRefund(ctx context.Context, refund *models.Refund, result payment.Result) (*models.Refund, error) {
	refundedAt := time.Now().UTC()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		moved, err := repo.TransitionStatus(ctx, refund.ID,
			[]enums.RefundStatus{enums.RefundStatusProcessing}, enums.RefundStatusRefunded,
			map[string]any{
				"provider_ref": result.ProviderRef,
				"refunded_at":  refundedAt,
			})
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund left PROCESSING before settlement")
		}

		meta, _ := json.Marshal(map[string]string{
			"order_id":     refund.OrderID.String(),
			"provider_ref": result.ProviderRef,
		})
		if _, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:        enums.LedgerEntryTypeRefund,
			EntityID:    refund.ID,
			EntityType:  enums.LedgerEntityRefund,
			AmountCents: -refund.AmountCents,
			Currency:    refund.Currency,
			Meta:        meta,
		}); err != nil {
			return err
		}

		return s.allocateToItems(ctx, repo, refund)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settling refund")
	}

	s.metrics.IncSuccess("refund")
	refund.Status = enums.RefundStatusRefunded
	refund.ProviderRef = &result.ProviderRef
	refund.RefundedAt = &refundedAt
	return refund, nil
}

// allocateToItems walks the order lines in order and assigns the refund
// amount greedily, capped at each line's remaining refundable amount. Any
// remainder beyond the lines (a shipping-fee portion, for example) is left
// unallocated.
func (s *service) allocateToItems(ctx context.Context, repo Repository, refund *models.Refund) error {
	items, err := repo.ListOrderItems(ctx, refund.OrderID)
	if err != nil {
		return err
	}

	remaining := refund.AmountCents
	for _, item := range items {
		if remaining <= 0 {
			break
		}
		capacity := item.SubtotalCents - item.DiscountCents - item.RefundedCents
		if capacity <= 0 {
			continue
		}
		share := remaining
		if share > capacity {
			share = capacity
		}
		if err := repo.SetItemRefunded(ctx, item.ID, item.RefundedCents+share); err != nil {
			return err
		}
		remaining -= share
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id is required")
	}
	return s.getRefund(ctx, id)
}

func (s *service) getRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	refund, err := s.repo.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading refund")
	}
	return refund, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*Page, error) {
	if input.Status != "" && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid refund status %q", input.Status))
	}

	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	refunds, err := s.repo.List(ctx, ListFilter{
		OrderID: input.OrderID,
		Status:  input.Status,
		Cursor:  cursor,
		Limit:   limit + 1,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing refunds")
	}

	page := &Page{Refunds: refunds}
	if len(refunds) > limit {
		page.Refunds = refunds[:limit]
		last := page.Refunds[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}
