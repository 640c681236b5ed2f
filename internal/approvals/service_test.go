package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
)

type fakeRepository struct {
	createFn func(ctx context.Context, action *models.AdminAction) error
	existsFn func(ctx context.Context, action enums.AdminActionType, entityID uuid.UUID, excludedActor uuid.UUID) (bool, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, action *models.AdminAction) error {
	if f.createFn != nil {
		return f.createFn(ctx, action)
	}
	return nil
}

func (f *fakeRepository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.AdminAction, error) {
	return nil, nil
}

func (f *fakeRepository) ExistsExcludingActor(ctx context.Context, action enums.AdminActionType, entityID uuid.UUID, excludedActor uuid.UUID) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(ctx, action, entityID, excludedActor)
	}
	return false, nil
}

func TestService_Record(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	metadata := json.RawMessage(`{"note":"looks good"}`)
	input := RecordInput{
		Action:   enums.AdminActionPayoutApproved,
		ActorID:  uuid.New(),
		EntityID: uuid.New(),
		Metadata: metadata,
	}

	var created *models.AdminAction
	repo.createFn = func(ctx context.Context, action *models.AdminAction) error {
		created = action
		return nil
	}

	got, err := svc.Record(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if created == nil {
		t.Fatal("expected admin action to be created")
	}
	if created.Action != input.Action || created.ActorID != input.ActorID || created.EntityID != input.EntityID {
		t.Fatalf("unexpected admin action data: %+v", created)
	}
	if string(created.Metadata) != string(metadata) {
		t.Fatalf("metadata mismatch: %s", created.Metadata)
	}
	if got != created {
		t.Fatalf("service should return created action")
	}
}

func TestService_RecordValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name  string
		input RecordInput
	}{
		{"invalid action", RecordInput{Action: "made_up", ActorID: uuid.New(), EntityID: uuid.New()}},
		{"missing actor", RecordInput{Action: enums.AdminActionPayoutRun, EntityID: uuid.New()}},
		{"missing entity", RecordInput{Action: enums.AdminActionPayoutRun, ActorID: uuid.New()}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Record(context.Background(), nil, tc.input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_HasApprovalExcludesRunner(t *testing.T) {
	runnerID := uuid.New()
	payoutID := uuid.New()

	var gotExcluded uuid.UUID
	repo := &fakeRepository{
		existsFn: func(ctx context.Context, action enums.AdminActionType, entityID uuid.UUID, excludedActor uuid.UUID) (bool, error) {
			if action != enums.AdminActionPayoutApproved {
				t.Fatalf("expected payout_approved query, got %s", action)
			}
			gotExcluded = excludedActor
			return true, nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	ok, err := svc.HasApproval(context.Background(), payoutID, runnerID)
	if err != nil {
		t.Fatalf("HasApproval error: %v", err)
	}
	if !ok {
		t.Fatal("expected approval to be found")
	}
	if gotExcluded != runnerID {
		t.Fatalf("expected runner %s to be excluded, got %s", runnerID, gotExcluded)
	}
}

func TestService_RecordRepoError(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	expectedErr := errors.New("boom")
	repo.createFn = func(ctx context.Context, action *models.AdminAction) error {
		return expectedErr
	}

	if _, err := svc.Record(context.Background(), nil, RecordInput{
		Action:   enums.AdminActionRefundRun,
		ActorID:  uuid.New(),
		EntityID: uuid.New(),
	}); !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
}
