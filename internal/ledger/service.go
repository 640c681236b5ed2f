package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

// Service records and reads ledger entries. Append participates in the
// caller's transaction so a status transition and its ledger entry commit or
// roll back together.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.LedgerEntry, error)
	ListByEntity(ctx context.Context, entityID uuid.UUID, entityType enums.LedgerEntityType) ([]models.LedgerEntry, error)
	List(ctx context.Context, input ListInput) (*Page, error)
	ChargedCents(ctx context.Context, orderID uuid.UUID) (int64, error)
	RefundedCents(ctx context.Context, orderID uuid.UUID) (int64, error)
	VerifyIntegrity(ctx context.Context) (*IntegrityReport, error)
}

type service struct {
	repo       Repository
	stuckAfter time.Duration
}

// AppendInput captures the immutable data a ledger entry requires.
type AppendInput struct {
	Type        enums.LedgerEntryType  `json:"type"`
	EntityID    uuid.UUID              `json:"entity_id"`
	EntityType  enums.LedgerEntityType `json:"entity_type"`
	AmountCents int64                  `json:"amount_cents"`
	Currency    enums.Currency         `json:"currency"`
	Meta        json.RawMessage        `json:"meta"`
}

// ListInput holds cursor pagination plus optional ledger filters.
type ListInput struct {
	EntityID   uuid.UUID
	EntityType enums.LedgerEntityType
	Type       enums.LedgerEntryType
	Limit      int
	Cursor     string
}

// Page is one page of ledger history plus the cursor for the next one.
type Page struct {
	Entries    []models.LedgerEntry `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// IntegrityIssue describes one reconciliation finding.
type IntegrityIssue struct {
	Kind     string    `json:"kind"`
	EntityID uuid.UUID `json:"entity_id"`
	Detail   string    `json:"detail"`
}

// IntegrityReport is the result of a full ledger reconciliation sweep.
type IntegrityReport struct {
	CheckedAt     time.Time        `json:"checked_at"`
	TotalInCents  int64            `json:"total_in_cents"`
	TotalOutCents int64            `json:"total_out_cents"`
	NetCents      int64            `json:"net_cents"`
	Issues        []IntegrityIssue `json:"issues"`
}

const (
	IssuePaidWithoutEntry     = "paid_payout_missing_entry"
	IssueRefundedWithoutEntry = "refunded_missing_entry"
	IssueStuckProcessing      = "stuck_processing"
	IssueDuplicateEntry       = "duplicate_entry"
)

// NewService wires a ledger service. stuckAfter bounds how long a PROCESSING
// row may sit before reconciliation flags it.
func NewService(repo Repository, stuckAfter time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if stuckAfter <= 0 {
		return nil, fmt.Errorf("stuck-after window must be positive")
	}
	return &service{repo: repo, stuckAfter: stuckAfter}, nil
}

func (s *service) Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.LedgerEntry, error) {
	if err := validateAppend(input); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		Type:        input.Type,
		EntityID:    input.EntityID,
		EntityType:  input.EntityType,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
		Meta:        []byte(input.Meta),
	}

	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending ledger entry")
	}
	return entry, nil
}

// validateAppend also enforces the sign convention: money flowing into the
// platform (CHARGE, COMMISSION) is positive, money flowing out (PAYOUT,
// REFUND) is negative.
func validateAppend(input AppendInput) error {
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", input.Type))
	}
	if input.EntityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	if !input.EntityType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entity type %q", input.EntityType))
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	if input.AmountCents == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-zero")
	}

	switch input.Type {
	case enums.LedgerEntryTypeCharge, enums.LedgerEntryTypeCommission:
		if input.AmountCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s entries must be positive", input.Type))
		}
	case enums.LedgerEntryTypePayout, enums.LedgerEntryTypeRefund:
		if input.AmountCents > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s entries must be negative", input.Type))
		}
	}
	return nil
}

func (s *service) ListByEntity(ctx context.Context, entityID uuid.UUID, entityType enums.LedgerEntityType) ([]models.LedgerEntry, error) {
	if entityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	if !entityType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entity type %q", entityType))
	}
	return s.repo.ListByEntity(ctx, entityID, entityType)
}

func (s *service) List(ctx context.Context, input ListInput) (*Page, error) {
	if input.EntityType != "" && !input.EntityType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entity type %q", input.EntityType))
	}
	if input.Type != "" && !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", input.Type))
	}

	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	entries, err := s.repo.List(ctx, ListFilter{
		EntityID:   input.EntityID,
		EntityType: input.EntityType,
		Type:       input.Type,
		Cursor:     cursor,
		Limit:      limit + 1,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing ledger entries")
	}

	page := &Page{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func (s *service) ChargedCents(ctx context.Context, orderID uuid.UUID) (int64, error) {
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.SumByEntityAndType(ctx, orderID, enums.LedgerEntityOrder, enums.LedgerEntryTypeCharge)
}

// RefundedCents returns the total refunded for an order as a positive number.
func (s *service) RefundedCents(ctx context.Context, orderID uuid.UUID) (int64, error) {
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	total, err := s.repo.SumRefundEntriesByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	return -total, nil
}

func (s *service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	now := time.Now().UTC()
	report := &IntegrityReport{CheckedAt: now}

	net, err := s.repo.NetCents(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing ledger net")
	}
	report.NetCents = net

	in, out, err := s.repo.DirectionTotals(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing ledger direction totals")
	}
	report.TotalInCents = in
	report.TotalOutCents = out

	paid, err := s.repo.PaidPayoutsWithoutEntry(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking paid payouts")
	}
	for _, id := range paid {
		report.Issues = append(report.Issues, IntegrityIssue{
			Kind:     IssuePaidWithoutEntry,
			EntityID: id,
			Detail:   "payout is PAID but has no PAYOUT ledger entry",
		})
	}

	refunded, err := s.repo.RefundedWithoutEntry(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking refunded refunds")
	}
	for _, id := range refunded {
		report.Issues = append(report.Issues, IntegrityIssue{
			Kind:     IssueRefundedWithoutEntry,
			EntityID: id,
			Detail:   "refund is REFUNDED but has no REFUND ledger entry",
		})
	}

	before := now.Add(-s.stuckAfter)
	stuckPayouts, err := s.repo.StuckProcessingPayouts(ctx, before)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking stuck payouts")
	}
	for _, id := range stuckPayouts {
		report.Issues = append(report.Issues, IntegrityIssue{
			Kind:     IssueStuckProcessing,
			EntityID: id,
			Detail:   fmt.Sprintf("payout in PROCESSING longer than %s", s.stuckAfter),
		})
	}
	stuckRefunds, err := s.repo.StuckProcessingRefunds(ctx, before)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking stuck refunds")
	}
	for _, id := range stuckRefunds {
		report.Issues = append(report.Issues, IntegrityIssue{
			Kind:     IssueStuckProcessing,
			EntityID: id,
			Detail:   fmt.Sprintf("refund in PROCESSING longer than %s", s.stuckAfter),
		})
	}

	duplicates, err := s.repo.DuplicateEntries(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking duplicate entries")
	}
	for _, group := range duplicates {
		report.Issues = append(report.Issues, IntegrityIssue{
			Kind:     IssueDuplicateEntry,
			EntityID: group.EntityID,
			Detail:   fmt.Sprintf("%d %s entries for %s", group.Count, group.Type, group.EntityType),
		})
	}

	return report, nil
}
