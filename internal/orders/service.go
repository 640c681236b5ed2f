package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/internal/commission"
	"github.com/piatahub/piata-backend/internal/ledger"
	"github.com/piatahub/piata-backend/internal/payouts"
	"github.com/piatahub/piata-backend/internal/shipping"
	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service records orders and their economic snapshot. Placement freezes the
// commission split and shipping fee and appends the CHARGE ledger entry;
// delivery makes the seller's money eligible by creating the PENDING payout.
type Service interface {
	Place(ctx context.Context, input PlaceInput) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Payout, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, input ListInput) (*Page, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   ledger.Service
	shipping shipping.Service
	payouts  payouts.Service
	logg     *logger.Logger
}

// ItemInput is one order line as submitted. CommissionBps overrides the
// order-level rate when set; an explicit zero means a commission-free line.
type ItemInput struct {
	ProductName    string `json:"product_name"`
	CategorySlug   string `json:"category_slug"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	DiscountCents  int64  `json:"discount_cents"`
	CommissionBps  *int   `json:"commission_bps,omitempty"`
}

// PlaceInput captures a new order before pricing.
type PlaceInput struct {
	BuyerID       uuid.UUID      `json:"buyer_id"`
	SellerID      uuid.UUID      `json:"seller_id"`
	Currency      enums.Currency `json:"currency"`
	CommissionBps int            `json:"commission_bps"`
	WeightKg      float64        `json:"weight_kg"`
	Items         []ItemInput    `json:"items"`
}

// ListInput holds cursor pagination plus optional order filters.
type ListInput struct {
	BuyerID  uuid.UUID
	SellerID uuid.UUID
	Status   enums.OrderStatus
	Limit    int
	Cursor   string
}

// Page is one page of orders plus the cursor for the next one.
type Page struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// NewService wires an order service and validates its dependencies.
func NewService(repo Repository, tx txRunner, ledgerSvc ledger.Service, shippingSvc shipping.Service, payoutSvc payouts.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if shippingSvc == nil {
		return nil, fmt.Errorf("shipping service required")
	}
	if payoutSvc == nil {
		return nil, fmt.Errorf("payout service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		ledger:   ledgerSvc,
		shipping: shippingSvc,
		payouts:  payoutSvc,
		logg:     logg,
	}, nil
}

// Place prices the submitted lines, snapshots the result onto the order, and
// appends the CHARGE ledger entry in the same transaction as the insert.
func (s *service) Place(ctx context.Context, input PlaceInput) (*models.Order, error) {
	if err := validatePlace(input); err != nil {
		return nil, err
	}

	lines := make([]commission.LineInput, 0, len(input.Items))
	categorySlugs := make([]string, 0, len(input.Items))
	for _, item := range input.Items {
		bps := input.CommissionBps
		if item.CommissionBps != nil {
			bps = *item.CommissionBps
		}
		lines = append(lines, commission.LineInput{
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			DiscountCents:  item.DiscountCents,
			CommissionBps:  bps,
		})
		if item.CategorySlug != "" {
			categorySlugs = append(categorySlugs, item.CategorySlug)
		}
	}

	breakdown, err := commission.Calculate(lines)
	if err != nil {
		return nil, err
	}
	netSubtotal := breakdown.SubtotalCents - breakdown.DiscountCents

	rules, _, err := s.shipping.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	shippingFee := shipping.ComputeFee(*rules, shipping.ComputeInput{
		SubtotalCents: netSubtotal,
		WeightKg:      input.WeightKg,
		SellerID:      input.SellerID,
		CategorySlugs: categorySlugs,
	})

	order := &models.Order{
		BuyerID:          input.BuyerID,
		SellerID:         input.SellerID,
		Status:           enums.OrderStatusPlaced,
		Currency:         input.Currency,
		SubtotalCents:    breakdown.SubtotalCents,
		DiscountCents:    breakdown.DiscountCents,
		ShippingFeeCents: shippingFee,
		TotalCents:       netSubtotal + shippingFee,
		CommissionBps:    input.CommissionBps,
		WeightKg:         input.WeightKg,
	}
	for i, item := range input.Items {
		result := breakdown.Lines[i]
		order.Items = append(order.Items, models.OrderItem{
			ProductName:           item.ProductName,
			CategorySlug:          item.CategorySlug,
			Qty:                   item.Qty,
			UnitPriceCents:        item.UnitPriceCents,
			DiscountCents:         item.DiscountCents,
			SubtotalCents:         result.SubtotalCents,
			CommissionBps:         lines[i].CommissionBps,
			CommissionAmountCents: result.CommissionCents,
			SellerDueCents:        result.SellerDueCents,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}

		meta, _ := json.Marshal(map[string]string{
			"buyer_id":  input.BuyerID.String(),
			"seller_id": input.SellerID.String(),
		})
		_, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
			Type:        enums.LedgerEntryTypeCharge,
			EntityID:    order.ID,
			EntityType:  enums.LedgerEntityOrder,
			AmountCents: order.TotalCents,
			Currency:    order.Currency,
			Meta:        meta,
		})
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "placing order")
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()),
		fmt.Sprintf("order placed: total %d %s, shipping %d", order.TotalCents, order.Currency, shippingFee))
	return order, nil
}

// MarkDelivered transitions the order to delivered and creates the PENDING
// payout carrying the frozen seller/commission split. The transition is
// conditional, so repeated delivery callbacks return the existing state
// instead of a second payout. A delivered order with no payout row (a prior
// call claimed the transition but failed before the payout insert) gets its
// payout created on retry.
func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Payout, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.repo.MarkDelivered(ctx, orderID, time.Now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking order delivered")
	}
	if !claimed {
		current, err := s.getOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if current.Status != enums.OrderStatusDelivered {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed,
				fmt.Sprintf("order is %s, not placed", current.Status))
		}
		page, err := s.payouts.List(ctx, payouts.ListInput{OrderID: orderID, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(page.Payouts) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed,
				"order is delivered, not placed")
		}
		return s.createSettlementPayout(ctx, current)
	}

	return s.createSettlementPayout(ctx, order)
}

func (s *service) createSettlementPayout(ctx context.Context, order *models.Order) (*models.Payout, error) {
	var amount, commissionTotal int64
	for _, item := range order.Items {
		amount += item.SellerDueCents
		commissionTotal += item.CommissionAmountCents
	}

	return s.payouts.Create(ctx, payouts.CreateInput{
		OrderID:         order.ID,
		SellerID:        order.SellerID,
		AmountCents:     amount,
		CommissionCents: commissionTotal,
		Currency:        order.Currency,
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.getOrder(ctx, id)
}

func (s *service) getOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*Page, error) {
	if input.Status != "" && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.Status))
	}

	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	rows, err := s.repo.List(ctx, ListFilter{
		BuyerID:  input.BuyerID,
		SellerID: input.SellerID,
		Status:   input.Status,
		Cursor:   cursor,
		Limit:    limit + 1,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}

	page := &Page{Orders: rows}
	if len(rows) > limit {
		page.Orders = rows[:limit]
		last := page.Orders[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func validatePlace(input PlaceInput) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if input.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	if input.CommissionBps < 0 || input.CommissionBps > commission.MaxBps {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("commission bps must be within [0, %d]", commission.MaxBps))
	}
	if input.WeightKg < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "weight must not be negative")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for i, item := range input.Items {
		if item.ProductName == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: product name is required", i))
		}
		if item.CommissionBps != nil && (*item.CommissionBps < 0 || *item.CommissionBps > commission.MaxBps) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %d: commission bps must be within [0, %d]", i, commission.MaxBps))
		}
	}
	return nil
}
