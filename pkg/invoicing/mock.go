package invoicing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockProvider issues deterministic documents in-process. Failures can be
// injected per order id to exercise the errored-invoice regenerate path.
type MockProvider struct {
	mu       sync.Mutex
	series   string
	next     int
	failures map[uuid.UUID]error
}

// NewMockProvider builds a mock invoicing provider using the given series.
func NewMockProvider(series string) *MockProvider {
	if series == "" {
		series = "PIATA"
	}
	return &MockProvider{series: series, next: 1, failures: make(map[uuid.UUID]error)}
}

func (m *MockProvider) Name() string { return "mock" }

// FailNext makes issuance for the given order fail until cleared.
func (m *MockProvider) FailNext(orderID uuid.UUID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[orderID] = err
}

// Clear removes an injected failure.
func (m *MockProvider) Clear(orderID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, orderID)
}

func (m *MockProvider) CreateInvoice(ctx context.Context, input InvoiceInput) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[input.OrderID]; ok {
		return Document{}, err
	}
	number := fmt.Sprintf("%06d", m.next)
	m.next++
	series := input.Series
	if series == "" {
		series = m.series
	}
	return Document{
		Series:     series,
		Number:     number,
		PDFURL:     fmt.Sprintf("https://invoices.local/%s/%s.pdf", series, number),
		TotalCents: input.TotalCents,
		Issuer:     "mock",
	}, nil
}

func (m *MockProvider) CreateReceipt(ctx context.Context, input ReceiptInput) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[input.OrderID]; ok {
		return Document{}, err
	}
	number := fmt.Sprintf("R%06d", m.next)
	m.next++
	series := input.Series
	if series == "" {
		series = m.series
	}
	return Document{
		Series:     series,
		Number:     number,
		PDFURL:     fmt.Sprintf("https://invoices.local/%s/%s.pdf", series, number),
		TotalCents: input.TotalCents,
		Issuer:     "mock",
	}, nil
}
