package invoicing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/pkg/config"
	"github.com/piatahub/piata-backend/pkg/enums"
	"github.com/piatahub/piata-backend/pkg/logger"
)

// InvoiceInput is the provider-facing issuance request.
type InvoiceInput struct {
	OrderID     uuid.UUID
	Type        enums.InvoiceType
	Series      string
	TotalCents  int64
	Currency    enums.Currency
	CustomerRef string
}

// ReceiptInput mirrors InvoiceInput plus payment details specific to receipts.
type ReceiptInput struct {
	OrderID       uuid.UUID
	Series        string
	TotalCents    int64
	Currency      enums.Currency
	PaymentMethod string
	PaymentRef    string
}

// Document is the provider's issued artifact.
type Document struct {
	Series     string
	Number     string
	PDFURL     string
	TotalCents int64
	Issuer     string
}

// Provider is the invoicing boundary. The issuance gate only calls this
// interface and never branches on provider identity.
type Provider interface {
	Name() string
	CreateInvoice(ctx context.Context, input InvoiceInput) (Document, error)
	CreateReceipt(ctx context.Context, input ReceiptInput) (Document, error)
}

// NewFromConfig selects the configured invoicing adapter.
func NewFromConfig(cfg config.InvoicingConfig, logg *logger.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "mock", "":
		return NewMockProvider(cfg.Series), nil
	case "smartbill":
		return newHTTPProvider("smartbill", "/SBORO/api/invoice", cfg, logg)
	case "facturis":
		return newHTTPProvider("facturis", "/api/v1/invoices", cfg, logg)
	default:
		return nil, fmt.Errorf("unknown invoicing provider %q", cfg.Provider)
	}
}
