package assembly

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planforge/planforge/internal/models"
	"github.com/planforge/planforge/internal/policy"
)

// fakeLookup serves canned data and records the id lists it was asked
// for, so tests can assert capping happened before the query.
type fakeLookup struct {
	mu sync.Mutex

	accessible map[uuid.UUID]bool
	project    *models.Project
	tracks     []models.Track
	items      []models.Item
	events     []models.CollaborationEvent
	deadlines  []models.Deadline

	requestedItemIDs  []uuid.UUID
	requestedTrackIDs []uuid.UUID
}

func (f *fakeLookup) UserCanAccessProject(_ context.Context, _, projectID uuid.UUID) (bool, error) {
	return f.accessible[projectID], nil
}

func (f *fakeLookup) Project(_ context.Context, _, _ uuid.UUID) (*models.Project, error) {
	return f.project, nil
}

func (f *fakeLookup) TracksByIDs(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]models.Track, error) {
	f.mu.Lock()
	f.requestedTrackIDs = ids
	f.mu.Unlock()
	var out []models.Track
	for _, t := range f.tracks {
		for _, id := range ids {
			if t.ID == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (f *fakeLookup) ItemsByIDs(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]models.Item, error) {
	f.mu.Lock()
	f.requestedItemIDs = ids
	f.mu.Unlock()
	var out []models.Item
	for _, it := range f.items {
		for _, id := range ids {
			if it.ID == id {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (f *fakeLookup) CollaborationEvents(_ context.Context, _, _ uuid.UUID, _ *models.TimeWindow, limit int) ([]models.CollaborationEvent, error) {
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeLookup) GraphNodes(_ context.Context, _, _ uuid.UUID, _ int) ([]models.GraphNode, error) {
	return nil, nil
}

func (f *fakeLookup) GraphEdges(_ context.Context, _, _ uuid.UUID, _ int) ([]models.GraphEdge, error) {
	return nil, nil
}

func (f *fakeLookup) TrackedTasks(_ context.Context, _, _ uuid.UUID, _ int) ([]models.TrackedTask, error) {
	return nil, nil
}

func (f *fakeLookup) People(_ context.Context, _, _ uuid.UUID, _ int) ([]models.Person, error) {
	return nil, nil
}

func (f *fakeLookup) Deadlines(_ context.Context, _, _ uuid.UUID, _ *models.TimeWindow, limit int) ([]models.Deadline, error) {
	if limit < len(f.deadlines) {
		return f.deadlines[:limit], nil
	}
	return f.deadlines, nil
}

func newTestAssembler(lookup Lookup) *Assembler {
	enforcer := policy.NewEnforcer(policy.Default())
	return NewAssembler(lookup, NewGuard(enforcer), DefaultBudgetTable(), zap.NewNop())
}

func TestAssemble_PermissionDeniedFailsClosed(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	lookup := &fakeLookup{accessible: map[uuid.UUID]bool{}}
	assembler := newTestAssembler(lookup)

	result, err := assembler.Assemble(context.Background(), uuid.New(),
		models.NewProjectSurface(projectID),
		models.ContextScope{ProjectID: &projectID},
		models.IntentChat,
	)

	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if result != nil {
		t.Error("no partial context may be returned on permission denial")
	}
}

func TestAssemble_SurfaceViolationAborts(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	assembler := newTestAssembler(&fakeLookup{})

	result, err := assembler.Assemble(context.Background(), uuid.New(),
		models.NewPersonalSurface(),
		models.ContextScope{ProjectID: &projectID, IncludeCollaboration: true},
		models.IntentChat,
	)
	if !policy.IsSurfaceScopeViolation(err) {
		t.Fatalf("expected surface scope violation, got %v", err)
	}
	if result != nil {
		t.Error("no partial context may be returned on a surface violation")
	}
}

func TestAssemble_CapsIDsBeforeQuerying(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	userID := uuid.New()
	lookup := &fakeLookup{
		accessible: map[uuid.UUID]bool{projectID: true},
		project:    &models.Project{ID: projectID, Name: "Atlas"},
	}

	// Chat budget allows 10 items; request 25.
	itemIDs := make([]uuid.UUID, 25)
	for i := range itemIDs {
		itemIDs[i] = uuid.New()
	}
	assembler := newTestAssembler(lookup)

	result, err := assembler.Assemble(context.Background(), userID,
		models.NewProjectSurface(projectID),
		models.ContextScope{ProjectID: &projectID, ItemIDs: itemIDs},
		models.IntentChat,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lookup.requestedItemIDs) != 10 {
		t.Errorf("expected lookup to receive 10 capped ids, got %d", len(lookup.requestedItemIDs))
	}
	found := false
	for _, v := range result.Violations {
		if v.Kind == "items_requested" && v.Limit == 10 && v.Actual == 25 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected items_requested violation, got %v", result.Violations)
	}
	if len(result.Items) > result.Budget.MaxItems {
		t.Errorf("item count %d exceeds budget %d", len(result.Items), result.Budget.MaxItems)
	}
}

func TestAssemble_CountsNeverExceedBudget(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	events := make([]models.CollaborationEvent, 40)
	for i := range events {
		events[i] = models.CollaborationEvent{ID: uuid.New(), ProjectID: projectID, Action: "comment"}
	}
	lookup := &fakeLookup{
		accessible: map[uuid.UUID]bool{projectID: true},
		project:    &models.Project{ID: projectID, Name: "Atlas"},
		events:     events,
	}
	assembler := newTestAssembler(lookup)

	for _, intent := range append(models.Intents, "unknown_intent") {
		result, err := assembler.Assemble(context.Background(), uuid.New(),
			models.NewProjectSurface(projectID),
			models.ContextScope{ProjectID: &projectID, IncludeCollaboration: true},
			intent,
		)
		if err != nil {
			t.Fatalf("intent %s: unexpected error: %v", intent, err)
		}
		if len(result.Collaboration) > result.Budget.MaxCollaborationEvents {
			t.Errorf("intent %s: %d events exceed budget %d",
				intent, len(result.Collaboration), result.Budget.MaxCollaborationEvents)
		}
	}
}

func TestAssemble_TruncatesFieldsDeterministically(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	itemID := uuid.New()
	longBody := strings.Repeat("planning detail ", 100)
	lookup := &fakeLookup{
		accessible: map[uuid.UUID]bool{projectID: true},
		project:    &models.Project{ID: projectID, Name: "Atlas", Description: longBody},
		items:      []models.Item{{ID: itemID, ProjectID: projectID, Title: "Ship", Body: longBody}},
	}
	assembler := newTestAssembler(lookup)
	scope := models.ContextScope{ProjectID: &projectID, ItemIDs: []uuid.UUID{itemID}}
	surface := models.NewProjectSurface(projectID)
	userID := uuid.New()

	first, err := assembler.Assemble(context.Background(), userID, surface, scope, models.IntentChat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := assembler.Assemble(context.Background(), userID, surface, scope, models.IntentChat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasSuffix(first.Items[0].Body, TruncationMarker) {
		t.Error("expected truncated body to end with the truncation marker")
	}
	maxField := first.Budget.MaxFieldLength
	if got := len([]rune(first.Items[0].Body)); got > maxField+len([]rune(TruncationMarker)) {
		t.Errorf("truncated body length %d exceeds cap %d", got, maxField)
	}

	// Identical inputs yield identical output, timestamp and hash aside.
	ignore := cmpopts.IgnoreFields(models.AssembledContext{}, "AssembledAt", "Hash")
	if diff := cmp.Diff(first, second, ignore); diff != "" {
		t.Errorf("re-assembly differs (-first +second):\n%s", diff)
	}
	if first.Hash == "" {
		t.Error("expected a content hash")
	}
}

func TestAssemble_BudgetViolationsDoNotAbort(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	trackIDs := make([]uuid.UUID, 30)
	tracks := make([]models.Track, 30)
	for i := range trackIDs {
		trackIDs[i] = uuid.New()
		tracks[i] = models.Track{ID: trackIDs[i], ProjectID: projectID, Name: "t"}
	}
	lookup := &fakeLookup{
		accessible: map[uuid.UUID]bool{projectID: true},
		project:    &models.Project{ID: projectID, Name: "Atlas"},
		tracks:     tracks,
	}
	assembler := newTestAssembler(lookup)

	result, err := assembler.Assemble(context.Background(), uuid.New(),
		models.NewProjectSurface(projectID),
		models.ContextScope{ProjectID: &projectID, TrackIDs: trackIDs},
		models.IntentChat,
	)
	if err != nil {
		t.Fatalf("budget overruns must not abort assembly: %v", err)
	}
	if len(result.Violations) == 0 {
		t.Error("expected recorded budget violations")
	}
}

func TestAssemble_RejectsCrossProjectRows(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	otherProject := uuid.New()

	// The user is a member of both projects, so the membership-scoped
	// lookup happily returns the foreign rows. The surface boundary
	// still has to reject them.
	newLookup := func() *fakeLookup {
		return &fakeLookup{
			accessible: map[uuid.UUID]bool{projectID: true, otherProject: true},
			project:    &models.Project{ID: projectID, Name: "Atlas"},
			tracks:     []models.Track{{ID: uuid.New(), ProjectID: otherProject, Name: "Other"}},
			items:      []models.Item{{ID: uuid.New(), ProjectID: otherProject, Title: "Foreign"}},
		}
	}

	t.Run("foreign track", func(t *testing.T) {
		t.Parallel()

		lookup := newLookup()
		result, err := newTestAssembler(lookup).Assemble(context.Background(), uuid.New(),
			models.NewProjectSurface(projectID),
			models.ContextScope{ProjectID: &projectID, TrackIDs: []uuid.UUID{lookup.tracks[0].ID}},
			models.IntentChat,
		)
		if !policy.IsViolation(err, policy.InvariantCrossProjectPermission) {
			t.Fatalf("expected cross-project violation, got %v", err)
		}
		if result != nil {
			t.Error("no partial context may be returned")
		}
	})

	t.Run("foreign item", func(t *testing.T) {
		t.Parallel()

		lookup := newLookup()
		result, err := newTestAssembler(lookup).Assemble(context.Background(), uuid.New(),
			models.NewProjectSurface(projectID),
			models.ContextScope{ProjectID: &projectID, ItemIDs: []uuid.UUID{lookup.items[0].ID}},
			models.IntentChat,
		)
		if !policy.IsViolation(err, policy.InvariantCrossProjectPermission) {
			t.Fatalf("expected cross-project violation, got %v", err)
		}
		if result != nil {
			t.Error("no partial context may be returned")
		}
	})
}

func TestAssemble_SharedSurfaceTrackRules(t *testing.T) {
	t.Parallel()

	authority := uuid.New()
	sharedTrack := models.Track{
		ID:                 uuid.New(),
		ProjectID:          authority,
		Name:               "Platform",
		Shared:             true,
		AuthorityProjectID: &authority,
	}
	unsharedTrack := models.Track{ID: uuid.New(), ProjectID: authority, Name: "Internal"}
	orphanShared := models.Track{ID: uuid.New(), ProjectID: authority, Name: "Orphan", Shared: true}
	onTrackItem := models.Item{ID: uuid.New(), ProjectID: authority, TrackID: sharedTrack.ID, Title: "Ship"}
	offTrackItem := models.Item{ID: uuid.New(), ProjectID: authority, TrackID: unsharedTrack.ID, Title: "Leak"}

	newLookup := func() *fakeLookup {
		return &fakeLookup{
			tracks: []models.Track{sharedTrack, unsharedTrack, orphanShared},
			items:  []models.Item{onTrackItem, offTrackItem},
		}
	}

	t.Run("shared track and its items pass", func(t *testing.T) {
		t.Parallel()

		result, err := newTestAssembler(newLookup()).Assemble(context.Background(), uuid.New(),
			models.NewSharedSurface(),
			models.ContextScope{TrackIDs: []uuid.UUID{sharedTrack.ID}, ItemIDs: []uuid.UUID{onTrackItem.ID}},
			models.IntentChat,
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Tracks) != 1 || len(result.Items) != 1 {
			t.Errorf("expected the shared track and its item, got %d tracks %d items",
				len(result.Tracks), len(result.Items))
		}
	})

	t.Run("unshared track is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := newTestAssembler(newLookup()).Assemble(context.Background(), uuid.New(),
			models.NewSharedSurface(),
			models.ContextScope{TrackIDs: []uuid.UUID{unsharedTrack.ID}},
			models.IntentChat,
		)
		if !policy.IsSurfaceScopeViolation(err) {
			t.Fatalf("expected surface scope violation, got %v", err)
		}
	})

	t.Run("shared track without an authority project is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := newTestAssembler(newLookup()).Assemble(context.Background(), uuid.New(),
			models.NewSharedSurface(),
			models.ContextScope{TrackIDs: []uuid.UUID{orphanShared.ID}},
			models.IntentChat,
		)
		if !policy.IsViolation(err, policy.InvariantSharedTrackAuthority) {
			t.Fatalf("expected shared-track authority violation, got %v", err)
		}
	})

	t.Run("item off the shared track is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := newTestAssembler(newLookup()).Assemble(context.Background(), uuid.New(),
			models.NewSharedSurface(),
			models.ContextScope{TrackIDs: []uuid.UUID{sharedTrack.ID}, ItemIDs: []uuid.UUID{offTrackItem.ID}},
			models.IntentChat,
		)
		if !policy.IsSurfaceScopeViolation(err) {
			t.Fatalf("expected surface scope violation, got %v", err)
		}
	})
}

func TestAssemble_PersonalSurfaceRejectsProjectRows(t *testing.T) {
	t.Parallel()

	trackID := uuid.New()
	lookup := &fakeLookup{
		tracks: []models.Track{{ID: trackID, ProjectID: uuid.New(), Name: "Backend"}},
	}

	result, err := newTestAssembler(lookup).Assemble(context.Background(), uuid.New(),
		models.NewPersonalSurface(),
		models.ContextScope{TrackIDs: []uuid.UUID{trackID}},
		models.IntentChat,
	)
	if !policy.IsSurfaceScopeViolation(err) {
		t.Fatalf("expected surface scope violation, got %v", err)
	}
	if result != nil {
		t.Error("no partial context may be returned")
	}
}

func TestAssemble_TimelineCompositionRules(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	parent := uuid.New()
	middle := models.Item{ID: uuid.New(), ProjectID: projectID, ParentID: &parent, HasChildren: true, Title: "Mid"}
	lookup := &fakeLookup{
		accessible: map[uuid.UUID]bool{projectID: true},
		project:    &models.Project{ID: projectID, Name: "Atlas"},
		items:      []models.Item{middle},
	}

	_, err := newTestAssembler(lookup).Assemble(context.Background(), uuid.New(),
		models.NewProjectSurface(projectID),
		models.ContextScope{ProjectID: &projectID, ItemIDs: []uuid.UUID{middle.ID}},
		models.IntentTimeline,
	)
	if !policy.IsViolation(err, policy.InvariantTimelineComposition) {
		t.Fatalf("expected timeline composition violation, got %v", err)
	}

	// The same item is fine outside a timeline context.
	if _, err := newTestAssembler(lookup).Assemble(context.Background(), uuid.New(),
		models.NewProjectSurface(projectID),
		models.ContextScope{ProjectID: &projectID, ItemIDs: []uuid.UUID{middle.ID}},
		models.IntentChat,
	); err != nil {
		t.Fatalf("unexpected error outside timeline intent: %v", err)
	}
}

func TestAssemble_CompositionDepthBounded(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	// Chain of four nested items; the default policy allows three.
	items := make([]models.Item, 4)
	ids := make([]uuid.UUID, 4)
	for i := range items {
		ids[i] = uuid.New()
		items[i] = models.Item{ID: ids[i], ProjectID: projectID, Title: "n"}
		if i > 0 {
			items[i].ParentID = &ids[i-1]
		}
	}
	lookup := &fakeLookup{
		accessible: map[uuid.UUID]bool{projectID: true},
		project:    &models.Project{ID: projectID, Name: "Atlas"},
		items:      items,
	}

	_, err := newTestAssembler(lookup).Assemble(context.Background(), uuid.New(),
		models.NewProjectSurface(projectID),
		models.ContextScope{ProjectID: &projectID, ItemIDs: ids},
		models.IntentChat,
	)
	if !policy.IsViolation(err, policy.InvariantTimelineComposition) {
		t.Fatalf("expected composition depth violation, got %v", err)
	}
}
