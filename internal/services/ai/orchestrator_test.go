package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planforge/planforge/internal/assembly"
	"github.com/planforge/planforge/internal/drafts"
	"github.com/planforge/planforge/internal/models"
	"github.com/planforge/planforge/internal/policy"
	"github.com/planforge/planforge/internal/routing"
	"github.com/planforge/planforge/internal/tags"
)

type stubAdapter struct {
	content string
	lastReq GenerateRequest
	err     error
}

func (s *stubAdapter) Name() string              { return "stub" }
func (s *stubAdapter) SupportsModel(string) bool { return true }
func (s *stubAdapter) Generate(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &GenerateResponse{
		Content:      s.content,
		FinishReason: FinishStop,
		Usage:        TokenUsage{Prompt: 100, Completion: 50, Total: 150},
	}, nil
}

type stubLookup struct {
	project *models.Project
	tracks  []models.Track
	items   []models.Item
}

func (s *stubLookup) UserCanAccessProject(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}

func (s *stubLookup) Project(context.Context, uuid.UUID, uuid.UUID) (*models.Project, error) {
	return s.project, nil
}

func (s *stubLookup) TracksByIDs(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]models.Track, error) {
	var out []models.Track
	for _, track := range s.tracks {
		for _, id := range ids {
			if track.ID == id {
				out = append(out, track)
			}
		}
	}
	return out, nil
}

func (s *stubLookup) ItemsByIDs(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]models.Item, error) {
	var out []models.Item
	for _, item := range s.items {
		for _, id := range ids {
			if item.ID == id {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (s *stubLookup) CollaborationEvents(context.Context, uuid.UUID, uuid.UUID, *models.TimeWindow, int) ([]models.CollaborationEvent, error) {
	return nil, nil
}

func (s *stubLookup) GraphNodes(context.Context, uuid.UUID, uuid.UUID, int) ([]models.GraphNode, error) {
	return nil, nil
}

func (s *stubLookup) GraphEdges(context.Context, uuid.UUID, uuid.UUID, int) ([]models.GraphEdge, error) {
	return nil, nil
}

func (s *stubLookup) TrackedTasks(context.Context, uuid.UUID, uuid.UUID, int) ([]models.TrackedTask, error) {
	return nil, nil
}

func (s *stubLookup) People(context.Context, uuid.UUID, uuid.UUID, int) ([]models.Person, error) {
	return nil, nil
}

func (s *stubLookup) Deadlines(context.Context, uuid.UUID, uuid.UUID, *models.TimeWindow, int) ([]models.Deadline, error) {
	return nil, nil
}

type stubDirectory struct {
	tracks []models.Track
}

func (s *stubDirectory) ProjectTracks(context.Context, uuid.UUID, uuid.UUID) ([]models.Track, error) {
	return s.tracks, nil
}

func (s *stubDirectory) ProjectItems(context.Context, uuid.UUID, uuid.UUID) ([]models.Item, error) {
	return nil, nil
}

func (s *stubDirectory) ProjectPeople(context.Context, uuid.UUID, uuid.UUID) ([]models.Person, error) {
	return nil, nil
}

func (s *stubDirectory) SharedTracks(context.Context, uuid.UUID) ([]models.Track, error) {
	return nil, nil
}

func (s *stubDirectory) GlobalPeople(context.Context, uuid.UUID) ([]models.Person, error) {
	return nil, nil
}

type stubRouteStore struct{}

func (stubRouteStore) EnabledRoutes(context.Context, string) ([]models.AIFeatureRoute, error) {
	return nil, nil
}

type captureStore struct {
	created *models.AIDraft
}

func (c *captureStore) Create(_ context.Context, draft *models.AIDraft) error {
	copied := *draft
	c.created = &copied
	return nil
}

func (c *captureStore) GetByID(context.Context, uuid.UUID, uuid.UUID) (*models.AIDraft, error) {
	return nil, errors.New("not found")
}

func (c *captureStore) Update(context.Context, *models.AIDraft) error { return nil }

func (c *captureStore) ListByUser(context.Context, uuid.UUID, int, int) ([]*models.AIDraft, int, error) {
	return nil, 0, nil
}

type noopApplier struct{}

func (noopApplier) Apply(context.Context, *models.AIDraft, []int) ([]uuid.UUID, error) {
	return nil, nil
}

type captureAudit struct {
	rows []models.AIInteraction
}

func (c *captureAudit) Record(_ context.Context, row models.AIInteraction) error {
	c.rows = append(c.rows, row)
	return nil
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	adapter      *stubAdapter
	store        *captureStore
	audit        *captureAudit
	projectID    uuid.UUID
	trackID      uuid.UUID
}

func newOrchestratorFixture(t *testing.T, modelOutput string) *orchestratorFixture {
	t.Helper()

	logger := zap.NewNop()
	projectID := uuid.New()
	trackID := uuid.New()

	track := models.Track{ID: trackID, ProjectID: projectID, Name: "Backend"}
	lookup := &stubLookup{
		project: &models.Project{ID: projectID, Name: "Launch"},
		tracks:  []models.Track{track},
	}

	enforcer := policy.NewEnforcer(policy.Default())
	assembler := assembly.NewAssembler(lookup, assembly.NewGuard(enforcer), assembly.DefaultBudgetTable(), logger)

	adapter := &stubAdapter{content: modelOutput}
	registry := NewRegistry()
	registry.Register("openai", func(map[string]string) (Adapter, error) { return adapter, nil })

	store := &captureStore{}
	audit := &captureAudit{}

	orchestrator := NewOrchestrator(
		tags.NewResolver(&stubDirectory{tracks: []models.Track{track}}),
		assembler,
		routing.NewResolver(stubRouteStore{}, logger),
		registry,
		func(string) map[string]string { return nil },
		drafts.NewService(store, noopApplier{}, enforcer, logger),
		audit,
		logger,
	)

	return &orchestratorFixture{
		orchestrator: orchestrator,
		adapter:      adapter,
		store:        store,
		audit:        audit,
		projectID:    projectID,
		trackID:      trackID,
	}
}

func TestGenerate_ProducesDraftWithProvenance(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, `{"title":"Launch plan","elements":[{"title":"Ship API"},{"title":"Ship UI"}]}`)
	userID := uuid.New()

	result, err := fx.orchestrator.Generate(context.Background(), GenerateInput{
		UserID:  userID,
		Surface: models.NewProjectSurface(fx.projectID),
		Scope:   models.ContextScope{ProjectID: &fx.projectID},
		Intent:  models.IntentPlanGeneration,
		Text:    "Draft a plan for @backend this quarter",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	draft := result.Draft
	if draft.Status != models.DraftGenerated {
		t.Errorf("expected generated status, got %s", draft.Status)
	}
	if draft.Type != models.DraftRoadmapItem {
		t.Errorf("expected roadmap_item draft, got %s", draft.Type)
	}
	if len(draft.Content.Elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(draft.Content.Elements))
	}
	if draft.Content.Elements[1].Index != 1 {
		t.Error("element indexes must be assigned in order")
	}

	// Provenance pins the draft to the exact context snapshot.
	if draft.Provenance.ContextHash == "" {
		t.Error("provenance must carry the context hash")
	}
	if draft.Provenance.Provider != "openai" {
		t.Errorf("provenance provider = %q", draft.Provenance.Provider)
	}
	if len(draft.Provenance.SourceEntityIDs) != 1 || draft.Provenance.SourceEntityIDs[0] != fx.trackID.String() {
		t.Errorf("expected resolved track as source entity, got %v", draft.Provenance.SourceEntityIDs)
	}

	if fx.store.created == nil {
		t.Fatal("draft was not persisted")
	}

	// The resolved track must reach the prompt via the widened scope.
	var sawContext bool
	for _, msg := range fx.adapter.lastReq.Messages {
		if strings.Contains(msg.Content, "Backend") {
			sawContext = true
		}
		if strings.Contains(msg.Content, "@backend") && msg.Role == "user" {
			t.Error("tag tokens must be stripped from the user message")
		}
	}
	if !sawContext {
		t.Error("referenced track never reached the prompt")
	}

	if len(fx.audit.rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(fx.audit.rows))
	}
	if fx.audit.rows[0].PromptTokens != 100 {
		t.Errorf("audit row token count = %d", fx.audit.rows[0].PromptTokens)
	}
}

func TestGenerate_StrictBudgetFails(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, `{"title":"x"}`)
	userID := uuid.New()

	// More item ids than any budget allows.
	var itemIDs []uuid.UUID
	for i := 0; i < 100; i++ {
		itemIDs = append(itemIDs, uuid.New())
	}

	_, err := fx.orchestrator.Generate(context.Background(), GenerateInput{
		UserID:       userID,
		Surface:      models.NewProjectSurface(fx.projectID),
		Scope:        models.ContextScope{ProjectID: &fx.projectID, ItemIDs: itemIDs},
		Intent:       models.IntentPlanGeneration,
		Text:         "plan everything",
		StrictBudget: true,
	})
	var budgetErr *BudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected BudgetExceededError, got %v", err)
	}
	if len(budgetErr.Violations) == 0 {
		t.Error("error must carry the violations")
	}
	if fx.store.created != nil {
		t.Error("no draft may be created when the budget check fails")
	}
}

func TestGenerate_SurfaceViolationAborts(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, `{"title":"x"}`)

	_, err := fx.orchestrator.Generate(context.Background(), GenerateInput{
		UserID:  uuid.New(),
		Surface: models.NewPersonalSurface(),
		Scope:   models.ContextScope{ProjectID: &fx.projectID},
		Intent:  models.IntentPlanGeneration,
		Text:    "plan",
	})
	if !policy.IsSurfaceScopeViolation(err) {
		t.Fatalf("expected surface scope violation, got %v", err)
	}
	if fx.store.created != nil {
		t.Error("no draft may be created on a surface violation")
	}
	if len(fx.audit.rows) != 0 {
		t.Error("no provider call may happen on a surface violation")
	}
}

func TestChat_ReturnsMessageWithoutDraft(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, "The backend track has two open items.")

	result, err := fx.orchestrator.Chat(context.Background(), GenerateInput{
		UserID:  uuid.New(),
		Surface: models.NewProjectSurface(fx.projectID),
		Scope:   models.ContextScope{ProjectID: &fx.projectID},
		Text:    "what is left on @backend?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message == "" {
		t.Error("chat must return the model reply")
	}
	if result.ContextHash == "" {
		t.Error("chat must report the context hash")
	}
	if fx.store.created != nil {
		t.Error("chat must not create drafts")
	}
}

func TestParseDraftContent(t *testing.T) {
	t.Parallel()

	t.Run("json wrapped in prose is salvaged", func(t *testing.T) {
		t.Parallel()
		content, err := parseDraftContent("Here you go: {\"title\":\"Plan\",\"elements\":[{\"title\":\"a\"}]} hope it helps", models.IntentPlanGeneration)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if content.Title != "Plan" || len(content.Elements) != 1 {
			t.Errorf("unexpected content: %+v", content)
		}
	})

	t.Run("invalid json fails", func(t *testing.T) {
		t.Parallel()
		if _, err := parseDraftContent("not json at all", models.IntentPlanGeneration); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("plain text intents keep raw body", func(t *testing.T) {
		t.Parallel()
		content, err := parseDraftContent("A short status summary.", models.IntentSummary)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if content.Body != "A short status summary." {
			t.Errorf("unexpected body %q", content.Body)
		}
	})
}

func TestDraftTypeForIntent(t *testing.T) {
	t.Parallel()

	if got := DraftTypeForIntent(models.IntentTimeline); got != models.DraftTimeline {
		t.Errorf("timeline intent maps to %s", got)
	}
	if got := DraftTypeForIntent("something_new"); got != models.DraftDocument {
		t.Errorf("unknown intent maps to %s", got)
	}
}
