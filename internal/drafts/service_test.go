package drafts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planforge/planforge/internal/models"
	"github.com/planforge/planforge/internal/policy"
)

type memoryStore struct {
	drafts map[uuid.UUID]*models.AIDraft
}

func newMemoryStore() *memoryStore {
	return &memoryStore{drafts: make(map[uuid.UUID]*models.AIDraft)}
}

func (m *memoryStore) Create(_ context.Context, draft *models.AIDraft) error {
	copied := *draft
	m.drafts[draft.ID] = &copied
	return nil
}

func (m *memoryStore) GetByID(_ context.Context, userID, draftID uuid.UUID) (*models.AIDraft, error) {
	draft, ok := m.drafts[draftID]
	if !ok || draft.UserID != userID {
		return nil, errors.New("draft not found")
	}
	copied := *draft
	return &copied, nil
}

func (m *memoryStore) Update(_ context.Context, draft *models.AIDraft) error {
	copied := *draft
	m.drafts[draft.ID] = &copied
	return nil
}

func (m *memoryStore) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]*models.AIDraft, int, error) {
	var out []*models.AIDraft
	for _, d := range m.drafts {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

type fakeApplier struct {
	applied   [][]int
	entityIDs []uuid.UUID
	err       error
}

func (f *fakeApplier) Apply(_ context.Context, _ *models.AIDraft, elements []int) ([]uuid.UUID, error) {
	f.applied = append(f.applied, elements)
	if f.err != nil {
		return nil, f.err
	}
	return f.entityIDs, nil
}

func newTestService(store Store, applier Applier) *Service {
	return NewService(store, applier, policy.NewEnforcer(policy.Default()), zap.NewNop())
}

func validProvenance() models.DraftProvenance {
	return models.DraftProvenance{
		SourceEntityIDs:   []string{uuid.NewString()},
		SourceEntityTypes: []models.EntityType{models.EntityItem},
		ContextHash:       "abc123",
		GeneratedAt:       time.Now().UTC(),
	}
}

func seedDraft(t *testing.T, store Store, userID uuid.UUID, draftType models.DraftType, status models.DraftStatus, elements int) *models.AIDraft {
	t.Helper()
	draft := &models.AIDraft{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       draftType,
		Status:     status,
		Provenance: validProvenance(),
	}
	for i := 0; i < elements; i++ {
		draft.Content.Elements = append(draft.Content.Elements, models.DraftElement{Index: i, Title: "step"})
	}
	if err := store.Create(context.Background(), draft); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	return draft
}

func TestApply_TerminalDraftRejected(t *testing.T) {
	t.Parallel()

	for _, status := range []models.DraftStatus{models.DraftAccepted, models.DraftDiscarded} {
		store := newMemoryStore()
		userID := uuid.New()
		draft := seedDraft(t, store, userID, models.DraftRoadmapItem, status, 0)
		svc := newTestService(store, &fakeApplier{})

		_, err := svc.Apply(context.Background(), userID, draft.ID, ApplyOptions{Confirmed: true})
		if !errors.Is(err, ErrAlreadyFinalized) {
			t.Errorf("status %s: expected ErrAlreadyFinalized, got %v", status, err)
		}

		// State must be untouched.
		stored, _ := store.GetByID(context.Background(), userID, draft.ID)
		if stored.Status != status {
			t.Errorf("status %s: terminal draft was mutated to %s", status, stored.Status)
		}
	}
}

func TestApply_RequiresConfirmation(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	userID := uuid.New()
	draft := seedDraft(t, store, userID, models.DraftRoadmapItem, models.DraftGenerated, 0)
	svc := newTestService(store, &fakeApplier{})

	_, err := svc.Apply(context.Background(), userID, draft.ID, ApplyOptions{})
	if !policy.IsViolation(err, policy.InvariantDraftConfirmation) {
		t.Errorf("unconfirmed apply must violate draft confirmation, got %v", err)
	}
}

func TestApply_OwnershipEnforced(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	owner := uuid.New()
	draft := seedDraft(t, store, owner, models.DraftRoadmapItem, models.DraftGenerated, 0)
	svc := newTestService(store, &fakeApplier{})

	// The store scopes by user, so a stranger simply cannot load it.
	_, err := svc.Apply(context.Background(), uuid.New(), draft.ID, ApplyOptions{Confirmed: true})
	if err == nil {
		t.Error("expected error for non-owner apply")
	}
}

func TestApply_WholeDraft(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	userID := uuid.New()
	entityID := uuid.New()
	draft := seedDraft(t, store, userID, models.DraftRoadmapItem, models.DraftGenerated, 0)
	applier := &fakeApplier{entityIDs: []uuid.UUID{entityID}}
	svc := newTestService(store, applier)

	applied, err := svc.Apply(context.Background(), userID, draft.ID, ApplyOptions{Confirmed: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied.Status != models.DraftAccepted {
		t.Errorf("expected accepted, got %s", applied.Status)
	}
	if len(applied.AppliedEntityIDs) != 1 || applied.AppliedEntityIDs[0] != entityID {
		t.Errorf("expected recorded entity id %s, got %v", entityID, applied.AppliedEntityIDs)
	}
}

func TestApply_PartialSelection(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	userID := uuid.New()
	draft := seedDraft(t, store, userID, models.DraftTaskList, models.DraftGenerated, 4)
	applier := &fakeApplier{entityIDs: []uuid.UUID{uuid.New(), uuid.New()}}
	svc := newTestService(store, applier)

	applied, err := svc.Apply(context.Background(), userID, draft.ID, ApplyOptions{
		Elements:  []int{2, 0, 2},
		Confirmed: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied.Status != models.DraftPartiallyApplied {
		t.Errorf("expected partially_applied, got %s", applied.Status)
	}
	if diff := cmp.Diff([]int{0, 2}, applied.Content.AppliedElements); diff != "" {
		t.Errorf("applied elements mismatch (-want +got):\n%s", diff)
	}
	if len(applied.Content.Elements) != 4 {
		t.Error("partial application must keep the original elements")
	}
}

func TestApply_PartialWithZeroElementsRejected(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	userID := uuid.New()
	draft := seedDraft(t, store, userID, models.DraftTaskList, models.DraftGenerated, 3)
	svc := newTestService(store, &fakeApplier{})

	_, err := svc.Apply(context.Background(), userID, draft.ID, ApplyOptions{Confirmed: true})
	if !errors.Is(err, ErrNoElementsSelected) {
		t.Errorf("expected ErrNoElementsSelected, got %v", err)
	}
}

func TestApply_SelectionOnSingleEntityDraftRejected(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	userID := uuid.New()
	draft := seedDraft(t, store, userID, models.DraftRoadmapItem, models.DraftGenerated, 0)
	svc := newTestService(store, &fakeApplier{})

	_, err := svc.Apply(context.Background(), userID, draft.ID, ApplyOptions{
		Elements:  []int{0},
		Confirmed: true,
	})
	if !errors.Is(err, ErrPartialNotSupported) {
		t.Errorf("expected ErrPartialNotSupported, got %v", err)
	}
}

func TestApply_FullSelectionAccepts(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	userID := uuid.New()
	draft := seedDraft(t, store, userID, models.DraftBreakdown, models.DraftGenerated, 2)
	svc := newTestService(store, &fakeApplier{entityIDs: []uuid.UUID{uuid.New()}})

	applied, err := svc.Apply(context.Background(), userID, draft.ID, ApplyOptions{
		Elements:  []int{0, 1},
		Confirmed: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied.Status != models.DraftAccepted {
		t.Errorf("selecting every element should accept the draft, got %s", applied.Status)
	}
}

func TestApply_IncompleteProvenanceRejected(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	userID := uuid.New()
	draft := &models.AIDraft{
		ID:     uuid.New(),
		UserID: userID,
		Type:   models.DraftRoadmapItem,
		Status: models.DraftGenerated,
		Provenance: models.DraftProvenance{
			SourceEntityIDs:   []string{"a", "b"},
			SourceEntityTypes: []models.EntityType{models.EntityItem},
			GeneratedAt:       time.Now().UTC(),
		},
	}
	if err := store.Create(context.Background(), draft); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(store, &fakeApplier{})

	_, err := svc.Apply(context.Background(), userID, draft.ID, ApplyOptions{Confirmed: true})
	var provErr *ProvenanceError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProvenanceError, got %v", err)
	}
	if _, ok := provErr.Fields["source_entities"]; !ok {
		t.Error("expected source_entities field detail")
	}
	if _, ok := provErr.Fields["context_hash"]; !ok {
		t.Error("expected context_hash field detail")
	}
}

func TestEdit_Lifecycle(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	userID := uuid.New()
	draft := seedDraft(t, store, userID, models.DraftDocument, models.DraftGenerated, 0)
	svc := newTestService(store, &fakeApplier{entityIDs: []uuid.UUID{uuid.New()}})

	edited, err := svc.Edit(context.Background(), userID, draft.ID, models.DraftContent{Title: "revised"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edited.Status != models.DraftEdited {
		t.Errorf("expected edited, got %s", edited.Status)
	}

	// Edited drafts can still be applied, then never edited again.
	if _, err := svc.Apply(context.Background(), userID, draft.ID, ApplyOptions{Confirmed: true}); err != nil {
		t.Fatalf("apply after edit failed: %v", err)
	}
	_, err = svc.Edit(context.Background(), userID, draft.ID, models.DraftContent{Title: "too late"})
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestDiscard_IsTerminal(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	userID := uuid.New()
	draft := seedDraft(t, store, userID, models.DraftSummary, models.DraftGenerated, 0)
	svc := newTestService(store, &fakeApplier{})

	discarded, err := svc.Discard(context.Background(), userID, draft.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if discarded.Status != models.DraftDiscarded {
		t.Errorf("expected discarded, got %s", discarded.Status)
	}
	if _, err := svc.Discard(context.Background(), userID, draft.ID); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to models.DraftStatus
		want     bool
	}{
		{models.DraftGenerated, models.DraftEdited, true},
		{models.DraftGenerated, models.DraftAccepted, true},
		{models.DraftEdited, models.DraftDiscarded, true},
		{models.DraftPartiallyApplied, models.DraftAccepted, true},
		{models.DraftPartiallyApplied, models.DraftEdited, false},
		{models.DraftAccepted, models.DraftEdited, false},
		{models.DraftAccepted, models.DraftDiscarded, false},
		{models.DraftDiscarded, models.DraftGenerated, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCreateGenerated_RejectsPreAppliedDraft(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := newTestService(store, &fakeApplier{})

	tests := []struct {
		name  string
		draft *models.AIDraft
	}{
		{
			name: "applied entity ids already set",
			draft: &models.AIDraft{
				ID:               uuid.New(),
				UserID:           uuid.New(),
				Type:             models.DraftRoadmapItem,
				Provenance:       validProvenance(),
				AppliedEntityIDs: []uuid.UUID{uuid.New()},
			},
		},
		{
			name: "status already accepted",
			draft: &models.AIDraft{
				ID:         uuid.New(),
				UserID:     uuid.New(),
				Type:       models.DraftTaskList,
				Status:     models.DraftAccepted,
				Provenance: validProvenance(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := service.CreateGenerated(context.Background(), tt.draft)
			if !policy.IsViolation(err, policy.InvariantAINoDirectWrite) {
				t.Fatalf("expected no-direct-write violation, got %v", err)
			}
			if _, getErr := store.GetByID(context.Background(), tt.draft.UserID, tt.draft.ID); getErr == nil {
				t.Error("pre-applied draft must not be stored")
			}
		})
	}
}

func TestSurfaceChecks(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	service := newTestService(newMemoryStore(), &fakeApplier{})
	draft := &models.AIDraft{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Type:    models.DraftRoadmapItem,
		Surface: models.NewProjectSurface(projectID),
	}

	if err := service.CheckReadSurface(draft, models.NewProjectSurface(projectID)); err != nil {
		t.Errorf("same-surface read should pass, got %v", err)
	}
	if err := service.CheckReadSurface(draft, models.NewPersonalSurface()); !policy.IsViolation(err, policy.InvariantSurfaceExclusivity) {
		t.Errorf("expected surface exclusivity violation, got %v", err)
	}
	if err := service.CheckRegenerateSurface(draft, models.NewProjectSurface(uuid.New())); !policy.IsViolation(err, policy.InvariantSurfaceExclusivity) {
		t.Errorf("expected surface exclusivity violation for foreign project, got %v", err)
	}
}
