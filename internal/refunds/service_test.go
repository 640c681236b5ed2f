package refunds

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/internal/approvals"
	"github.com/piatahub/piata-backend/internal/ledger"
	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/payment"
)

type fakeRepository struct {
	mu      sync.Mutex
	refunds map[uuid.UUID]*models.Refund
	items   map[uuid.UUID][]*models.OrderItem // keyed by order id
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		refunds: make(map[uuid.UUID]*models.Refund),
		items:   make(map[uuid.UUID][]*models.OrderItem),
	}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, refund *models.Refund) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	refund.CreatedAt = time.Now().UTC()
	copied := *refund
	f.refunds[refund.ID] = &copied
	return nil
}

func (f *fakeRepository) Get(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refund, ok := f.refunds[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *refund
	return &copied, nil
}

func (f *fakeRepository) List(ctx context.Context, filter ListFilter) ([]models.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Refund
	for _, refund := range f.refunds {
		if filter.OrderID != uuid.Nil && refund.OrderID != filter.OrderID {
			continue
		}
		if filter.Status != "" && refund.Status != filter.Status {
			continue
		}
		out = append(out, *refund)
	}
	return out, nil
}

func (f *fakeRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.RefundStatus, to enums.RefundStatus, updates map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refund, ok := f.refunds[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range from {
		if refund.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	refund.Status = to
	if ref, ok := updates["provider_ref"].(string); ok {
		refund.ProviderRef = &ref
	}
	if reason, ok := updates["failure_reason"].(string); ok {
		refund.FailureReason = &reason
	}
	if refundedAt, ok := updates["refunded_at"].(time.Time); ok {
		refund.RefundedAt = &refundedAt
	}
	return true, nil
}

func (f *fakeRepository) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OrderItem
	for _, item := range f.items[orderID] {
		out = append(out, *item)
	}
	return out, nil
}

func (f *fakeRepository) SetItemRefunded(ctx context.Context, itemID uuid.UUID, refundedCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, items := range f.items {
		for _, item := range items {
			if item.ID == itemID {
				item.RefundedCents = refundedCents
				return nil
			}
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeRepository) addItem(orderID uuid.UUID, subtotal int64) *models.OrderItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := &models.OrderItem{
		ID:            uuid.New(),
		OrderID:       orderID,
		Qty:           1,
		SubtotalCents: subtotal,
		CreatedAt:     time.Now().UTC().Add(time.Duration(len(f.items[orderID])) * time.Second),
	}
	f.items[orderID] = append(f.items[orderID], item)
	return item
}

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeLedger struct {
	mu       sync.Mutex
	charged  map[uuid.UUID]int64
	refunded map[uuid.UUID]int64
	appends  []ledger.AppendInput
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		charged:  make(map[uuid.UUID]int64),
		refunded: make(map[uuid.UUID]int64),
	}
}

func (f *fakeLedger) Append(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) (*models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, input)
	if input.Type == enums.LedgerEntryTypeRefund {
		var meta struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(input.Meta, &meta); err == nil {
			if orderID, err := uuid.Parse(meta.OrderID); err == nil {
				f.refunded[orderID] += -input.AmountCents
			}
		}
	}
	return &models.LedgerEntry{Type: input.Type, AmountCents: input.AmountCents}, nil
}

func (f *fakeLedger) ListByEntity(ctx context.Context, entityID uuid.UUID, entityType enums.LedgerEntityType) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) List(ctx context.Context, input ledger.ListInput) (*ledger.Page, error) {
	return &ledger.Page{}, nil
}

func (f *fakeLedger) ChargedCents(ctx context.Context, orderID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charged[orderID], nil
}

func (f *fakeLedger) RefundedCents(ctx context.Context, orderID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunded[orderID], nil
}

func (f *fakeLedger) VerifyIntegrity(ctx context.Context) (*ledger.IntegrityReport, error) {
	return &ledger.IntegrityReport{}, nil
}

func (f *fakeLedger) entries() []ledger.AppendInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.AppendInput(nil), f.appends...)
}

type fakeAudit struct {
	mu       sync.Mutex
	recorded []approvals.RecordInput
}

func (f *fakeAudit) Record(ctx context.Context, tx *gorm.DB, input approvals.RecordInput) (*models.AdminAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, input)
	return &models.AdminAction{Action: input.Action}, nil
}

func (f *fakeAudit) HasApproval(ctx context.Context, payoutID uuid.UUID, runnerID uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeAudit) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.AdminAction, error) {
	return nil, nil
}

type refundFixture struct {
	svc      Service
	repo     *fakeRepository
	ledger   *fakeLedger
	audit    *fakeAudit
	provider *payment.MockProvider
}

func newFixture(t *testing.T) *refundFixture {
	t.Helper()

	repo := newFakeRepository()
	ledgerSvc := newFakeLedger()
	audit := &fakeAudit{}
	provider := payment.NewMockProvider()
	logg := logger.New(logger.Options{ServiceName: "refunds-test", Output: io.Discard})

	svc, err := NewService(repo, &fakeTxRunner{}, ledgerSvc, audit, provider, nil, logg)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return &refundFixture{svc: svc, repo: repo, ledger: ledgerSvc, audit: audit, provider: provider}
}

func TestService_RequestWithinBalance(t *testing.T) {
	fx := newFixture(t)
	orderID := uuid.New()
	fx.ledger.charged[orderID] = 15000

	refund, err := fx.svc.Request(context.Background(), RequestInput{
		OrderID:     orderID,
		AmountCents: 5000,
		Currency:    enums.CurrencyRON,
		Reason:      "damaged item",
		ActorID:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if refund.Status != enums.RefundStatusPending {
		t.Fatalf("expected PENDING, got %s", refund.Status)
	}
	if len(fx.ledger.entries()) != 0 {
		t.Fatal("request must not write ledger entries")
	}
	if len(fx.audit.recorded) != 1 || fx.audit.recorded[0].Action != enums.AdminActionRefundRequested {
		t.Fatalf("expected refund_requested audit record, got %+v", fx.audit.recorded)
	}
}

func TestService_RequestOverRefundRejected(t *testing.T) {
	fx := newFixture(t)
	orderID := uuid.New()
	fx.ledger.charged[orderID] = 15000
	fx.ledger.refunded[orderID] = 12000

	_, err := fx.svc.Request(context.Background(), RequestInput{
		OrderID:     orderID,
		AmountCents: 3001,
		Currency:    enums.CurrencyRON,
		Reason:      "partial return",
		ActorID:     uuid.New(),
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeOverRefund) {
		t.Fatalf("expected over-refund error, got %v", err)
	}

	// exactly the remaining balance is allowed
	if _, err := fx.svc.Request(context.Background(), RequestInput{
		OrderID:     orderID,
		AmountCents: 3000,
		Currency:    enums.CurrencyRON,
		Reason:      "partial return",
		ActorID:     uuid.New(),
	}); err != nil {
		t.Fatalf("Request error: %v", err)
	}
}

func TestService_RequestValidation(t *testing.T) {
	fx := newFixture(t)

	valid := RequestInput{
		OrderID:     uuid.New(),
		AmountCents: 100,
		Currency:    enums.CurrencyRON,
		Reason:      "damaged",
		ActorID:     uuid.New(),
	}

	tests := []struct {
		name   string
		mutate func(in *RequestInput)
	}{
		{"missing order", func(in *RequestInput) { in.OrderID = uuid.Nil }},
		{"zero amount", func(in *RequestInput) { in.AmountCents = 0 }},
		{"negative amount", func(in *RequestInput) { in.AmountCents = -5 }},
		{"bad currency", func(in *RequestInput) { in.Currency = "XYZ" }},
		{"missing reason", func(in *RequestInput) { in.Reason = "" }},
		{"missing actor", func(in *RequestInput) { in.ActorID = uuid.Nil }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			if _, err := fx.svc.Request(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func requestRefund(t *testing.T, fx *refundFixture, orderID uuid.UUID, amount int64) *models.Refund {
	t.Helper()

	refund, err := fx.svc.Request(context.Background(), RequestInput{
		OrderID:     orderID,
		AmountCents: amount,
		Currency:    enums.CurrencyRON,
		Reason:      "damaged item",
		ActorID:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	return refund
}

func TestService_RunHappyPath(t *testing.T) {
	fx := newFixture(t)
	orderID := uuid.New()
	fx.ledger.charged[orderID] = 15000
	fx.repo.addItem(orderID, 6000)
	fx.repo.addItem(orderID, 9000)

	refund := requestRefund(t, fx, orderID, 8000)

	got, err := fx.svc.Run(context.Background(), RunInput{RefundID: refund.ID, RunnerID: uuid.New()})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got.Status != enums.RefundStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", got.Status)
	}
	if got.ProviderRef == nil || *got.ProviderRef == "" {
		t.Fatal("expected provider ref")
	}

	entries := fx.ledger.entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 REFUND entry, got %d", len(entries))
	}
	if entries[0].Type != enums.LedgerEntryTypeRefund || entries[0].AmountCents != -8000 {
		t.Fatalf("unexpected refund entry: %+v", entries[0])
	}
	if entries[0].EntityID != refund.ID {
		t.Fatal("refund entry must reference the refund row")
	}

	// greedy allocation: first line absorbed fully, second takes the rest
	items, _ := fx.repo.ListOrderItems(context.Background(), orderID)
	if items[0].RefundedCents != 6000 {
		t.Fatalf("item A refunded = %d, want 6000", items[0].RefundedCents)
	}
	if items[1].RefundedCents != 2000 {
		t.Fatalf("item B refunded = %d, want 2000", items[1].RefundedCents)
	}
}

func TestService_RunAllocationExcludesDiscounts(t *testing.T) {
	fx := newFixture(t)
	orderID := uuid.New()
	fx.ledger.charged[orderID] = 20000
	item := fx.repo.addItem(orderID, 5000)
	item.DiscountCents = 1000

	refund := requestRefund(t, fx, orderID, 5000)

	if _, err := fx.svc.Run(context.Background(), RunInput{RefundID: refund.ID, RunnerID: uuid.New()}); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	// the line was only charged 4000 after its discount
	items, _ := fx.repo.ListOrderItems(context.Background(), orderID)
	if items[0].RefundedCents != 4000 {
		t.Fatalf("item refunded = %d, want 4000", items[0].RefundedCents)
	}
}

func TestService_RunRechecksBalanceAgainstSettledRefunds(t *testing.T) {
	fx := newFixture(t)
	orderID := uuid.New()
	fx.ledger.charged[orderID] = 10000
	fx.repo.addItem(orderID, 10000)

	// a pending request does not reserve balance, so both fit at request time
	first := requestRefund(t, fx, orderID, 8000)
	second := requestRefund(t, fx, orderID, 8000)

	if _, err := fx.svc.Run(context.Background(), RunInput{RefundID: first.ID, RunnerID: uuid.New()}); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	_, err := fx.svc.Run(context.Background(), RunInput{RefundID: second.ID, RunnerID: uuid.New()})
	if !pkgerrors.IsCode(err, pkgerrors.CodeOverRefund) {
		t.Fatalf("expected OVER_REFUND after the first refund settled, got %v", err)
	}

	// rejected before any state change or provider call
	current, _ := fx.repo.Get(context.Background(), second.ID)
	if current.Status != enums.RefundStatusPending {
		t.Fatalf("expected second refund to stay PENDING, got %s", current.Status)
	}
	if fx.provider.RefundCalls() != 1 {
		t.Fatalf("expected 1 provider call, got %d", fx.provider.RefundCalls())
	}
	if entries := fx.ledger.entries(); len(entries) != 1 {
		t.Fatalf("expected 1 REFUND entry, got %d", len(entries))
	}
}

func TestService_RunAllocationCappedPerItem(t *testing.T) {
	fx := newFixture(t)
	orderID := uuid.New()
	fx.ledger.charged[orderID] = 20000
	item := fx.repo.addItem(orderID, 5000)
	item.RefundedCents = 4000

	refund := requestRefund(t, fx, orderID, 3000)

	if _, err := fx.svc.Run(context.Background(), RunInput{RefundID: refund.ID, RunnerID: uuid.New()}); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	items, _ := fx.repo.ListOrderItems(context.Background(), orderID)
	if items[0].RefundedCents != 5000 {
		t.Fatalf("item refunded = %d, must never exceed the line charge 5000", items[0].RefundedCents)
	}
}

func TestService_RunIdempotentWhenRefunded(t *testing.T) {
	fx := newFixture(t)
	orderID := uuid.New()
	fx.ledger.charged[orderID] = 15000

	refund := requestRefund(t, fx, orderID, 5000)
	runner := uuid.New()

	if _, err := fx.svc.Run(context.Background(), RunInput{RefundID: refund.ID, RunnerID: runner}); err != nil {
		t.Fatalf("first Run error: %v", err)
	}

	second, err := fx.svc.Run(context.Background(), RunInput{RefundID: refund.ID, RunnerID: runner})
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if second.Status != enums.RefundStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", second.Status)
	}
	if fx.provider.RefundCalls() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", fx.provider.RefundCalls())
	}
	if len(fx.ledger.entries()) != 1 {
		t.Fatalf("expected no additional ledger entries, got %d", len(fx.ledger.entries()))
	}
}

func TestService_RunProviderFailureRetryable(t *testing.T) {
	fx := newFixture(t)
	orderID := uuid.New()
	fx.ledger.charged[orderID] = 15000

	refund := requestRefund(t, fx, orderID, 5000)
	fx.provider.FailNext(refund.ID, "card_expired")
	runner := uuid.New()

	_, err := fx.svc.Run(context.Background(), RunInput{RefundID: refund.ID, RunnerID: runner})
	if !pkgerrors.IsCode(err, pkgerrors.CodeProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}

	stored, _ := fx.repo.Get(context.Background(), refund.ID)
	if stored.Status != enums.RefundStatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if stored.FailureReason == nil || *stored.FailureReason != "card_expired" {
		t.Fatalf("expected captured failure reason, got %v", stored.FailureReason)
	}
	if len(fx.ledger.entries()) != 0 {
		t.Fatal("failed run must not write ledger entries")
	}

	// retry without allow_failed is rejected
	if _, err := fx.svc.Run(context.Background(), RunInput{RefundID: refund.ID, RunnerID: runner}); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// retry with allow_failed succeeds
	fx.provider.Clear(refund.ID)
	got, err := fx.svc.Run(context.Background(), RunInput{RefundID: refund.ID, RunnerID: runner, AllowFailed: true})
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if got.Status != enums.RefundStatusRefunded {
		t.Fatalf("expected REFUNDED after retry, got %s", got.Status)
	}
}

func TestService_RunConcurrentLoserBacksOff(t *testing.T) {
	fx := newFixture(t)
	orderID := uuid.New()
	fx.ledger.charged[orderID] = 15000

	refund := requestRefund(t, fx, orderID, 5000)
	moved, err := fx.repo.TransitionStatus(context.Background(), refund.ID,
		[]enums.RefundStatus{enums.RefundStatusPending}, enums.RefundStatusProcessing, nil)
	if err != nil || !moved {
		t.Fatalf("failed to stage PROCESSING state: moved=%v err=%v", moved, err)
	}

	_, err = fx.svc.Run(context.Background(), RunInput{RefundID: refund.ID, RunnerID: uuid.New()})
	if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
		t.Fatalf("expected already processed error, got %v", err)
	}
	if fx.provider.RefundCalls() != 0 {
		t.Fatal("loser must not call the provider")
	}
}
