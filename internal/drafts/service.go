package drafts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planforge/planforge/internal/models"
	"github.com/planforge/planforge/internal/policy"
)

// Store is the draft storage collaborator; every operation is scoped by
// the owning user id.
type Store interface {
	Create(ctx context.Context, draft *models.AIDraft) error
	GetByID(ctx context.Context, userID, draftID uuid.UUID) (*models.AIDraft, error)
	Update(ctx context.Context, draft *models.AIDraft) error
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.AIDraft, int, error)
}

// Applier turns draft content into authoritative entities on explicit
// user confirmation. It is the only path from AI output to
// authoritative data.
type Applier interface {
	// Apply creates entities for the selected elements (nil means the
	// whole draft) and returns their ids.
	Apply(ctx context.Context, draft *models.AIDraft, elements []int) ([]uuid.UUID, error)
}

// ApplyOptions controls one application attempt
type ApplyOptions struct {
	// Elements selects element indexes for partial application; empty
	// means whole-draft application.
	Elements []int
	// Confirmed records explicit user confirmation. Required for every
	// draft type under the production policy.
	Confirmed bool
}

// Service drives the draft lifecycle
type Service struct {
	store    Store
	applier  Applier
	enforcer *policy.Enforcer
	logger   *zap.Logger
}

// NewService creates a draft lifecycle service.
func NewService(store Store, applier Applier, enforcer *policy.Enforcer, logger *zap.Logger) *Service {
	return &Service{store: store, applier: applier, enforcer: enforcer, logger: logger}
}

// CreateGenerated persists a freshly generated draft after validating
// its provenance. Only the generation pipeline calls this.
func (s *Service) CreateGenerated(ctx context.Context, draft *models.AIDraft) error {
	// Model output enters the system as an unapplied draft. A draft
	// arriving pre-applied is a direct write wearing a draft's clothes.
	if len(draft.AppliedEntityIDs) > 0 || draft.Status == models.DraftAccepted || draft.Status == models.DraftPartiallyApplied {
		return s.enforcer.AssertNoDirectWrite(targetEntity(draft.Type), "create")
	}
	if err := validateProvenance(draft.Provenance); err != nil {
		return err
	}
	draft.Status = models.DraftGenerated
	now := time.Now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	if err := s.store.Create(ctx, draft); err != nil {
		return fmt.Errorf("failed to store draft: %w", err)
	}
	return nil
}

// CheckReadSurface asserts that a draft generated on one surface is not
// being pulled into a conversation on another.
func (s *Service) CheckReadSurface(draft *models.AIDraft, surface models.ChatSurface) error {
	return s.enforcer.AssertNoCrossSurfaceRead(draft.Surface, surface)
}

// CheckRegenerateSurface asserts a regeneration stays on the surface
// the draft was generated on.
func (s *Service) CheckRegenerateSurface(draft *models.AIDraft, next models.ChatSurface) error {
	return s.enforcer.AssertSurfaceUnchanged(draft.Surface, next)
}

// Get returns one of the user's drafts.
func (s *Service) Get(ctx context.Context, userID, draftID uuid.UUID) (*models.AIDraft, error) {
	draft, err := s.store.GetByID(ctx, userID, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return draft, nil
}

// List returns the user's drafts, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.AIDraft, int, error) {
	return s.store.ListByUser(ctx, userID, page, pageSize)
}

// Edit replaces a draft's content. Only the owner may edit, and only
// before the draft is finalized.
func (s *Service) Edit(ctx context.Context, actorID, draftID uuid.UUID, content models.DraftContent) (*models.AIDraft, error) {
	draft, err := s.store.GetByID(ctx, actorID, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if err := s.enforcer.AssertDraftOwnership(draft.UserID, actorID); err != nil {
		return nil, err
	}
	if err := checkTransition(draft.Status, models.DraftEdited); err != nil {
		return nil, err
	}

	draft.Content = content
	draft.Status = models.DraftEdited
	draft.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	return draft, nil
}

// Discard finalizes a draft without applying it.
func (s *Service) Discard(ctx context.Context, actorID, draftID uuid.UUID) (*models.AIDraft, error) {
	draft, err := s.store.GetByID(ctx, actorID, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if err := s.enforcer.AssertDraftOwnership(draft.UserID, actorID); err != nil {
		return nil, err
	}
	if err := checkTransition(draft.Status, models.DraftDiscarded); err != nil {
		return nil, err
	}

	draft.Status = models.DraftDiscarded
	draft.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	return draft, nil
}

// Apply turns a draft into authoritative entities. Partial application
// applies only the selected elements and keeps the draft content
// intact, recording which elements were applied.
func (s *Service) Apply(ctx context.Context, actorID, draftID uuid.UUID, opts ApplyOptions) (*models.AIDraft, error) {
	draft, err := s.store.GetByID(ctx, actorID, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if err := s.enforcer.AssertDraftOwnership(draft.UserID, actorID); err != nil {
		return nil, err
	}
	if err := s.enforcer.AssertDraftConfirmation(draft.Type, opts.Confirmed); err != nil {
		return nil, err
	}
	if draft.Status.Terminal() {
		return nil, ErrAlreadyFinalized
	}
	if err := validateProvenance(draft.Provenance); err != nil {
		return nil, err
	}

	partialCapable := s.enforcer.Policy().AllowsPartialApply(draft.Type)
	var elements []int
	targetStatus := models.DraftAccepted

	if partialCapable {
		// Element-addressed types always apply by explicit selection.
		if len(opts.Elements) == 0 {
			return nil, ErrNoElementsSelected
		}
		elements, err = normalizeSelection(opts.Elements, len(draft.Content.Elements))
		if err != nil {
			return nil, err
		}
		if len(elements) < len(draft.Content.Elements) {
			targetStatus = models.DraftPartiallyApplied
		}
	} else if len(opts.Elements) > 0 {
		return nil, ErrPartialNotSupported
	}

	if err := checkTransition(draft.Status, targetStatus); err != nil {
		return nil, err
	}

	entityIDs, err := s.applier.Apply(ctx, draft, elements)
	if err != nil {
		return nil, fmt.Errorf("failed to apply draft: %w", err)
	}

	draft.AppliedEntityIDs = append(draft.AppliedEntityIDs, entityIDs...)
	if partialCapable {
		draft.Content.AppliedElements = mergeSelection(draft.Content.AppliedElements, elements)
		if len(draft.Content.AppliedElements) == len(draft.Content.Elements) {
			targetStatus = models.DraftAccepted
		}
	}
	draft.Status = targetStatus
	draft.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}

	s.logger.Info("draft_applied",
		zap.String("draft_id", draft.ID.String()),
		zap.String("draft_type", string(draft.Type)),
		zap.String("status", string(draft.Status)),
		zap.Int("applied_entities", len(entityIDs)),
	)
	return draft, nil
}

// targetEntity names the authoritative entity kind a draft type would
// create when applied.
func targetEntity(t models.DraftType) models.EntityType {
	switch t {
	case models.DraftRoadmapItem, models.DraftChildItem, models.DraftBreakdown,
		models.DraftTimeline, models.DraftTaskList, models.DraftChecklist:
		return models.EntityItem
	default:
		return models.EntityProject
	}
}

// normalizeSelection sorts, deduplicates, and range-checks an element
// selection.
func normalizeSelection(selection []int, elementCount int) ([]int, error) {
	seen := make(map[int]bool, len(selection))
	out := make([]int, 0, len(selection))
	for _, idx := range selection {
		if idx < 0 || idx >= elementCount {
			return nil, fmt.Errorf("element index %d out of range [0,%d)", idx, elementCount)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}

func mergeSelection(existing, added []int) []int {
	seen := make(map[int]bool, len(existing)+len(added))
	out := make([]int, 0, len(existing)+len(added))
	for _, idx := range append(append([]int{}, existing...), added...) {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
