package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/pkg/db/models"
)

// MockProvider is a deterministic in-process adapter for dev and tests.
// Failures can be injected per entity id.
type MockProvider struct {
	mu       sync.Mutex
	failures map[uuid.UUID]*ProviderError
	payouts  int
	refunds  int
}

// NewMockProvider builds a mock payment provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{failures: make(map[uuid.UUID]*ProviderError)}
}

func (m *MockProvider) Name() string { return "mock" }

// FailNext makes calls for the given entity id fail with reason until cleared.
func (m *MockProvider) FailNext(entityID uuid.UUID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[entityID] = NewProviderError(reason, nil)
}

// Clear removes an injected failure.
func (m *MockProvider) Clear(entityID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, entityID)
}

// PayoutCalls reports how many payout executions reached the provider.
func (m *MockProvider) PayoutCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payouts
}

// RefundCalls reports how many refund executions reached the provider.
func (m *MockProvider) RefundCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refunds
}

func (m *MockProvider) ExecutePayout(ctx context.Context, payout *models.Payout) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, NewTimeoutError(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts++
	if failure, ok := m.failures[payout.ID]; ok {
		return Result{}, failure
	}
	return Result{ProviderRef: fmt.Sprintf("mock-payout-%s", payout.ID)}, nil
}

func (m *MockProvider) ExecuteRefund(ctx context.Context, refund *models.Refund) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, NewTimeoutError(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds++
	if failure, ok := m.failures[refund.ID]; ok {
		return Result{}, failure
	}
	return Result{ProviderRef: fmt.Sprintf("mock-refund-%s", refund.ID)}, nil
}
