package payouts

import (
	"context"
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
	"github.com/piatahub/piata-backend/pkg/pagination"
	"github.com/piatahub/piata-backend/pkg/payment"
)

type fakeRepository struct {
	mu      sync.Mutex
	payouts map[uuid.UUID]*models.Payout
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{payouts: make(map[uuid.UUID]*models.Payout)}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, payout *models.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	payout.CreatedAt = time.Now().UTC()
	copied := *payout
	f.payouts[payout.ID] = &copied
	return nil
}

func (f *fakeRepository) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payout, ok := f.payouts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *payout
	return &copied, nil
}

func (f *fakeRepository) List(ctx context.Context, filter ListFilter) ([]models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payout
	for _, payout := range f.payouts {
		if filter.SellerID != uuid.Nil && payout.SellerID != filter.SellerID {
			continue
		}
		if filter.Status != "" && payout.Status != filter.Status {
			continue
		}
		out = append(out, *payout)
	}
	return out, nil
}

func (f *fakeRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payout, ok := f.payouts[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range from {
		if payout.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	payout.Status = to
	if ref, ok := updates["provider_ref"].(string); ok {
		payout.ProviderRef = &ref
	}
	if reason, ok := updates["failure_reason"].(string); ok {
		payout.FailureReason = &reason
	}
	if paidAt, ok := updates["paid_at"].(time.Time); ok {
		payout.PaidAt = &paidAt
	}
	return true, nil
}

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeLedger struct {
	mu      sync.Mutex
	appends []ledger.AppendInput
}

func (f *fakeLedger) Append(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) (*models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends = append(f.appends, input)
	return &models.LedgerEntry{
		Type:        input.Type,
		EntityID:    input.EntityID,
		EntityType:  input.EntityType,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
	}, nil
}

func (f *fakeLedger) ListByEntity(ctx context.Context, entityID uuid.UUID, entityType enums.LedgerEntityType) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedger) List(ctx context.Context, input ledger.ListInput) (*ledger.Page, error) {
	return &ledger.Page{}, nil
}

func (f *fakeLedger) ChargedCents(ctx context.Context, orderID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeLedger) RefundedCents(ctx context.Context, orderID uuid.UUID) (int64, error) {
	return 0, nil
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
	mu        sync.Mutex
	approvals map[uuid.UUID][]uuid.UUID // payout id -> approver ids
	recorded  []approvals.RecordInput
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{approvals: make(map[uuid.UUID][]uuid.UUID)}
}

func (f *fakeAudit) approve(payoutID, approver uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals[payoutID] = append(f.approvals[payoutID], approver)
}

func (f *fakeAudit) Record(ctx context.Context, tx *gorm.DB, input approvals.RecordInput) (*models.AdminAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, input)
	if input.Action == enums.AdminActionPayoutApproved {
		f.approvals[input.EntityID] = append(f.approvals[input.EntityID], input.ActorID)
	}
	return &models.AdminAction{Action: input.Action, ActorID: input.ActorID, EntityID: input.EntityID}, nil
}

func (f *fakeAudit) HasApproval(ctx context.Context, payoutID uuid.UUID, runnerID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, approver := range f.approvals[payoutID] {
		if approver != runnerID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAudit) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.AdminAction, error) {
	return nil, nil
}

type payoutFixture struct {
	svc      Service
	repo     *fakeRepository
	ledger   *fakeLedger
	audit    *fakeAudit
	provider *payment.MockProvider
}

func newFixture(t *testing.T) *payoutFixture {
	t.Helper()

	repo := newFakeRepository()
	ledgerSvc := &fakeLedger{}
	audit := newFakeAudit()
	provider := payment.NewMockProvider()
	logg := logger.New(logger.Options{ServiceName: "payouts-test", Output: io.Discard})

	svc, err := NewService(repo, &fakeTxRunner{}, ledgerSvc, audit, provider, nil, logg)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return &payoutFixture{svc: svc, repo: repo, ledger: ledgerSvc, audit: audit, provider: provider}
}

func (fx *payoutFixture) createPayout(t *testing.T) *models.Payout {
	t.Helper()

	payout, err := fx.svc.Create(context.Background(), CreateInput{
		OrderID:         uuid.New(),
		SellerID:        uuid.New(),
		AmountCents:     13473,
		CommissionCents: 1497,
		Currency:        enums.CurrencyRON,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	return payout
}

func TestService_CreatePending(t *testing.T) {
	fx := newFixture(t)

	payout := fx.createPayout(t)
	if payout.Status != enums.PayoutStatusPending {
		t.Fatalf("expected PENDING, got %s", payout.Status)
	}
	if len(fx.ledger.entries()) != 0 {
		t.Fatal("create must not write ledger entries")
	}
}

func TestService_CreateValidation(t *testing.T) {
	fx := newFixture(t)

	valid := CreateInput{
		OrderID:         uuid.New(),
		SellerID:        uuid.New(),
		AmountCents:     100,
		CommissionCents: 10,
		Currency:        enums.CurrencyRON,
	}

	tests := []struct {
		name   string
		mutate func(in *CreateInput)
	}{
		{"missing order", func(in *CreateInput) { in.OrderID = uuid.Nil }},
		{"missing seller", func(in *CreateInput) { in.SellerID = uuid.Nil }},
		{"zero amount", func(in *CreateInput) { in.AmountCents = 0 }},
		{"negative commission", func(in *CreateInput) { in.CommissionCents = -1 }},
		{"bad currency", func(in *CreateInput) { in.Currency = "XYZ" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			if _, err := fx.svc.Create(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_RunHappyPath(t *testing.T) {
	fx := newFixture(t)
	payout := fx.createPayout(t)

	approver := uuid.New()
	runner := uuid.New()
	fx.audit.approve(payout.ID, approver)

	got, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: runner})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got.Status != enums.PayoutStatusPaid {
		t.Fatalf("expected PAID, got %s", got.Status)
	}
	if got.ProviderRef == nil || *got.ProviderRef == "" {
		t.Fatal("expected provider ref to be recorded")
	}
	if got.PaidAt == nil {
		t.Fatal("expected paid_at to be set")
	}

	entries := fx.ledger.entries()
	if len(entries) != 2 {
		t.Fatalf("expected PAYOUT and COMMISSION entries, got %d", len(entries))
	}
	if entries[0].Type != enums.LedgerEntryTypePayout || entries[0].AmountCents != -13473 {
		t.Fatalf("unexpected payout entry: %+v", entries[0])
	}
	if entries[1].Type != enums.LedgerEntryTypeCommission || entries[1].AmountCents != 1497 {
		t.Fatalf("unexpected commission entry: %+v", entries[1])
	}
	if entries[1].EntityID != payout.OrderID {
		t.Fatal("commission entry must reference the order")
	}
	if fx.provider.PayoutCalls() != 1 {
		t.Fatalf("expected 1 provider call, got %d", fx.provider.PayoutCalls())
	}
}

func TestService_RunRequiresApproval(t *testing.T) {
	fx := newFixture(t)
	payout := fx.createPayout(t)

	_, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: uuid.New()})
	if !pkgerrors.IsCode(err, pkgerrors.CodeApprovalMissing) {
		t.Fatalf("expected approval missing error, got %v", err)
	}
	if fx.provider.PayoutCalls() != 0 {
		t.Fatal("provider must not be called without approval")
	}

	stored, _ := fx.repo.Get(context.Background(), payout.ID)
	if stored.Status != enums.PayoutStatusPending {
		t.Fatalf("payout should stay PENDING, got %s", stored.Status)
	}
}

func TestService_RunSelfApprovalRejected(t *testing.T) {
	fx := newFixture(t)
	payout := fx.createPayout(t)

	admin := uuid.New()
	if _, err := fx.svc.Approve(context.Background(), payout.ID, admin); err != nil {
		t.Fatalf("Approve error: %v", err)
	}

	// the sole approver cannot also run the payout
	_, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: admin})
	if !pkgerrors.IsCode(err, pkgerrors.CodeApprovalMissing) {
		t.Fatalf("expected approval missing error, got %v", err)
	}

	// anyone else may
	if _, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: uuid.New()}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
}

func TestService_RunIdempotentWhenPaid(t *testing.T) {
	fx := newFixture(t)
	payout := fx.createPayout(t)
	fx.audit.approve(payout.ID, uuid.New())
	runner := uuid.New()

	first, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: runner})
	if err != nil {
		t.Fatalf("first Run error: %v", err)
	}

	second, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: runner})
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if second.Status != enums.PayoutStatusPaid {
		t.Fatalf("expected PAID, got %s", second.Status)
	}
	if *second.ProviderRef != *first.ProviderRef {
		t.Fatal("idempotent run must return the original result")
	}
	if fx.provider.PayoutCalls() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", fx.provider.PayoutCalls())
	}
	if len(fx.ledger.entries()) != 2 {
		t.Fatalf("expected no additional ledger entries, got %d", len(fx.ledger.entries()))
	}
}

func TestService_RunProviderFailure(t *testing.T) {
	fx := newFixture(t)
	payout := fx.createPayout(t)
	fx.audit.approve(payout.ID, uuid.New())
	fx.provider.FailNext(payout.ID, "insufficient_funds")

	_, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: uuid.New()})
	if !pkgerrors.IsCode(err, pkgerrors.CodeProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}

	stored, _ := fx.repo.Get(context.Background(), payout.ID)
	if stored.Status != enums.PayoutStatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if stored.FailureReason == nil || *stored.FailureReason != "insufficient_funds" {
		t.Fatalf("expected captured failure reason, got %v", stored.FailureReason)
	}
	if len(fx.ledger.entries()) != 0 {
		t.Fatal("failed run must not write ledger entries")
	}
}

func TestService_RunFailedRequiresAllowFailed(t *testing.T) {
	fx := newFixture(t)
	payout := fx.createPayout(t)
	fx.audit.approve(payout.ID, uuid.New())
	fx.provider.FailNext(payout.ID, "declined")

	runner := uuid.New()
	if _, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: runner}); err == nil {
		t.Fatal("expected first run to fail")
	}

	// plain retry is rejected
	_, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: runner})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// retry with allow_failed succeeds once the decline is cleared
	fx.provider.Clear(payout.ID)
	got, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: runner, AllowFailed: true})
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if got.Status != enums.PayoutStatusPaid {
		t.Fatalf("expected PAID after retry, got %s", got.Status)
	}
}

func TestService_RunTimeoutMarksFailed(t *testing.T) {
	fx := newFixture(t)
	payout := fx.createPayout(t)
	fx.audit.approve(payout.ID, uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.svc.Run(ctx, RunInput{PayoutID: payout.ID, RunnerID: uuid.New()})
	if !pkgerrors.IsCode(err, pkgerrors.CodeProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}

	stored, _ := fx.repo.Get(context.Background(), payout.ID)
	if stored.Status != enums.PayoutStatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if stored.FailureReason == nil || *stored.FailureReason != "timeout" {
		t.Fatalf("expected timeout reason, got %v", stored.FailureReason)
	}
}

func TestService_RunConcurrentLoserBacksOff(t *testing.T) {
	fx := newFixture(t)
	payout := fx.createPayout(t)
	fx.audit.approve(payout.ID, uuid.New())

	// simulate another run having claimed the row
	moved, err := fx.repo.TransitionStatus(context.Background(), payout.ID,
		[]enums.PayoutStatus{enums.PayoutStatusPending}, enums.PayoutStatusProcessing, nil)
	if err != nil || !moved {
		t.Fatalf("failed to stage PROCESSING state: moved=%v err=%v", moved, err)
	}

	_, err = fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: uuid.New()})
	if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
		t.Fatalf("expected already processed error, got %v", err)
	}
	if fx.provider.PayoutCalls() != 0 {
		t.Fatal("loser must not call the provider")
	}
}

func TestService_RunNotFound(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Run(context.Background(), RunInput{PayoutID: uuid.New(), RunnerID: uuid.New()})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestService_ApprovePaidRejected(t *testing.T) {
	fx := newFixture(t)
	payout := fx.createPayout(t)
	fx.audit.approve(payout.ID, uuid.New())

	if _, err := fx.svc.Run(context.Background(), RunInput{PayoutID: payout.ID, RunnerID: uuid.New()}); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	_, err := fx.svc.Approve(context.Background(), payout.ID, uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
		t.Fatalf("expected already processed error, got %v", err)
	}
}

func TestService_ListValidatesCursor(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.svc.List(context.Background(), ListInput{Cursor: "not-base64!"}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := fx.svc.List(context.Background(), ListInput{Status: "SHINY"}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	page, err := fx.svc.List(context.Background(), ListInput{Limit: pagination.MaxLimit})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(page.Payouts) != 0 {
		t.Fatalf("expected empty page, got %d", len(page.Payouts))
	}
}
