package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/internal/approvals"
	"github.com/piatahub/piata-backend/pkg/db"
	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/invoicing"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/metrics"
)

// Service gates invoice issuance. Issue is idempotent per (order, type):
// an existing invoice is returned unchanged without a second provider call.
// Regenerate replaces an errored invoice in place and is the only path that
// re-invokes the provider for a pair that already has a row.
type Service interface {
	Issue(ctx context.Context, input IssueInput) (*models.Invoice, error)
	Regenerate(ctx context.Context, input RegenerateInput) (*models.Invoice, error)
	Get(ctx context.Context, orderID uuid.UUID, invoiceType enums.InvoiceType) (*models.Invoice, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Invoice, error)
}

type service struct {
	repo     Repository
	audit    approvals.Service
	provider invoicing.Provider
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
}

// IssueInput identifies the (order, type) pair to issue.
type IssueInput struct {
	OrderID uuid.UUID         `json:"order_id"`
	Type    enums.InvoiceType `json:"type"`
}

// RegenerateInput identifies the errored invoice and the admin replacing it.
type RegenerateInput struct {
	OrderID uuid.UUID         `json:"order_id"`
	Type    enums.InvoiceType `json:"type"`
	ActorID uuid.UUID         `json:"actor_id"`
}

// NewService wires an invoice service and validates its dependencies.
func NewService(repo Repository, audit approvals.Service, provider invoicing.Provider, m *metrics.SettlementMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if audit == nil {
		return nil, fmt.Errorf("approvals service required")
	}
	if provider == nil {
		return nil, fmt.Errorf("invoicing provider required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		audit:    audit,
		provider: provider,
		metrics:  m,
		logg:     logg,
	}, nil
}

// Issue creates the invoice for (order, type). An existing row of any status
// is returned as-is; an errored one only changes through Regenerate.
func (s *service) Issue(ctx context.Context, input IssueInput) (*models.Invoice, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid invoice type %q", input.Type))
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	existing, err := s.repo.GetByOrderAndType(ctx, input.OrderID, input.Type)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading invoice")
	}

	order, err := s.getOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	total := invoiceTotal(order, input.Type)
	invoice := &models.Invoice{
		OrderID:    input.OrderID,
		Type:       input.Type,
		TotalCents: total,
		Currency:   order.Currency,
	}

	started := time.Now()
	doc, providerErr := s.provider.CreateInvoice(ctx, invoicing.InvoiceInput{
		OrderID:     input.OrderID,
		Type:        input.Type,
		TotalCents:  total,
		Currency:    order.Currency,
		CustomerRef: order.BuyerID.String(),
	})
	s.metrics.ObserveProviderCall("invoice", time.Since(started))

	if providerErr != nil {
		// the errored row is kept so an admin can regenerate it
		reason := providerErr.Error()
		invoice.Status = enums.InvoiceStatusError
		invoice.ErrorMessage = &reason
		s.metrics.IncFailure("invoice")
		s.logg.Error(ctx, fmt.Sprintf("invoice issuance failed for order %s type %s", input.OrderID, input.Type), providerErr)
	} else {
		issuedAt := time.Now().UTC()
		invoice.Status = enums.InvoiceStatusIssued
		invoice.Series = doc.Series
		invoice.Number = doc.Number
		invoice.PDFURL = doc.PDFURL
		invoice.IssuedAt = &issuedAt
		s.metrics.IncSuccess("invoice")
	}

	if err := s.repo.Create(ctx, invoice); err != nil {
		if db.IsUniqueViolation(err, "ux_invoices_order_type") {
			// a concurrent issuance won; return its row
			winner, getErr := s.repo.GetByOrderAndType(ctx, input.OrderID, input.Type)
			if getErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, getErr, "loading concurrent invoice")
			}
			return winner, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating invoice")
	}

	if providerErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, providerErr, "issuing invoice")
	}
	return invoice, nil
}

// Regenerate replaces an errored invoice in place. Rows with status issued
// are immutable through this path.
func (s *service) Regenerate(ctx context.Context, input RegenerateInput) (*models.Invoice, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid invoice type %q", input.Type))
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}

	ctx = s.logg.WithActorID(ctx, input.ActorID.String())

	invoice, err := s.repo.GetByOrderAndType(ctx, input.OrderID, input.Type)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading invoice")
	}
	if invoice.Status != enums.InvoiceStatusError {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only errored invoices can be regenerated")
	}

	order, err := s.getOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	total := invoiceTotal(order, input.Type)

	started := time.Now()
	doc, providerErr := s.provider.CreateInvoice(ctx, invoicing.InvoiceInput{
		OrderID:     input.OrderID,
		Type:        input.Type,
		TotalCents:  total,
		Currency:    order.Currency,
		CustomerRef: order.BuyerID.String(),
	})
	s.metrics.ObserveProviderCall("invoice", time.Since(started))

	if providerErr != nil {
		reason := providerErr.Error()
		invoice.ErrorMessage = &reason
		if err := s.repo.Update(ctx, invoice); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording invoice error")
		}
		s.metrics.IncFailure("invoice")
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, providerErr, "regenerating invoice")
	}

	issuedAt := time.Now().UTC()
	invoice.Status = enums.InvoiceStatusIssued
	invoice.Series = doc.Series
	invoice.Number = doc.Number
	invoice.PDFURL = doc.PDFURL
	invoice.TotalCents = total
	invoice.ErrorMessage = nil
	invoice.IssuedAt = &issuedAt
	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating invoice")
	}
	s.metrics.IncSuccess("invoice")

	meta, _ := json.Marshal(map[string]string{
		"order_id": input.OrderID.String(),
		"type":     string(input.Type),
	})
	if _, err := s.audit.Record(ctx, nil, approvals.RecordInput{
		Action:   enums.AdminActionInvoiceRegenerated,
		ActorID:  input.ActorID,
		EntityID: invoice.ID,
		Metadata: meta,
	}); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("recording invoice regenerate action: %v", err))
	}
	return invoice, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, invoiceType enums.InvoiceType) (*models.Invoice, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !invoiceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid invoice type %q", invoiceType))
	}

	invoice, err := s.repo.GetByOrderAndType(ctx, orderID, invoiceType)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading invoice")
	}
	return invoice, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Invoice, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	invoices, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing invoices")
	}
	return invoices, nil
}

func (s *service) getOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

// invoiceTotal derives the document total from the order's frozen pricing
// snapshot. The commission and seller documents split the subtotal; the
// platform document covers the full buyer charge including shipping.
func invoiceTotal(order *models.Order, invoiceType enums.InvoiceType) int64 {
	switch invoiceType {
	case enums.InvoiceTypeCommission:
		var total int64
		for _, item := range order.Items {
			total += item.CommissionAmountCents
		}
		return total
	case enums.InvoiceTypeSeller:
		var total int64
		for _, item := range order.Items {
			total += item.SellerDueCents
		}
		return total
	default:
		return order.TotalCents
	}
}
