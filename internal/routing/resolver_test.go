package routing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planforge/planforge/internal/models"
)

type fakeRouteStore struct {
	routes map[string][]models.AIFeatureRoute
}

func (f *fakeRouteStore) EnabledRoutes(_ context.Context, featureKey string) ([]models.AIFeatureRoute, error) {
	return f.routes[featureKey], nil
}

func route(featureKey, provider, model string, priority int) models.AIFeatureRoute {
	return models.AIFeatureRoute{
		ID:         uuid.New(),
		FeatureKey: featureKey,
		Provider:   provider,
		ModelKey:   model,
		Enabled:    true,
		Priority:   priority,
	}
}

func surfacePtr(t models.SurfaceType) *models.SurfaceType { return &t }

func resolve(t *testing.T, store RouteStore, req Request) *models.ResolvedRoute {
	t.Helper()
	resolved, err := NewResolver(store, zap.NewNop()).Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resolved
}

func TestResolve_NoRoutesReturnsDefault(t *testing.T) {
	t.Parallel()

	resolved := resolve(t, &fakeRouteStore{}, Request{Intent: models.IntentChat})

	if !resolved.Default {
		t.Error("expected the baked-in default route")
	}
	if resolved.Provider != DefaultProvider || resolved.ModelKey != DefaultModelKey {
		t.Errorf("unexpected default route: %s/%s", resolved.Provider, resolved.ModelKey)
	}
}

func TestResolve_ProjectSpecificityWins(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	general := route("assistant.chat", "openai", "gpt-4o-mini", 100)
	scoped := route("assistant.chat", "openai", "gpt-4o", 0)
	scoped.ProjectID = &projectID

	store := &fakeRouteStore{routes: map[string][]models.AIFeatureRoute{
		"assistant.chat": {general, scoped},
	}}
	resolved := resolve(t, store, Request{Intent: models.IntentChat, ProjectID: &projectID})

	if resolved.RouteID != scoped.ID {
		t.Error("project-scoped route must beat a general route regardless of priority")
	}
}

func TestResolve_ForeignProjectRouteExcluded(t *testing.T) {
	t.Parallel()

	otherProject := uuid.New()
	scoped := route("assistant.chat", "openai", "gpt-4o", 10)
	scoped.ProjectID = &otherProject

	store := &fakeRouteStore{routes: map[string][]models.AIFeatureRoute{
		"assistant.chat": {scoped},
	}}
	projectID := uuid.New()
	resolved := resolve(t, store, Request{Intent: models.IntentChat, ProjectID: &projectID})

	if !resolved.Default {
		t.Error("a route naming a different project must be excluded entirely")
	}
}

func TestResolve_SurfaceSpecificity(t *testing.T) {
	t.Parallel()

	anySurface := route("assistant.chat", "openai", "gpt-4o-mini", 50)
	personal := route("assistant.chat", "openai", "gpt-4o", 0)
	personal.SurfaceType = surfacePtr(models.SurfacePersonal)

	store := &fakeRouteStore{routes: map[string][]models.AIFeatureRoute{
		"assistant.chat": {anySurface, personal},
	}}

	resolved := resolve(t, store, Request{
		Intent:      models.IntentChat,
		SurfaceType: surfacePtr(models.SurfacePersonal),
	})
	if resolved.RouteID != personal.ID {
		t.Error("surface-matched route must beat an any-surface route")
	}

	// On a project surface the personal route is excluded.
	resolved = resolve(t, store, Request{
		Intent:      models.IntentChat,
		SurfaceType: surfacePtr(models.SurfaceProject),
	})
	if resolved.RouteID != anySurface.ID {
		t.Error("route naming a different surface must be excluded")
	}
}

func TestResolve_PriorityBreaksSpecificityTies(t *testing.T) {
	t.Parallel()

	low := route("assistant.chat", "openai", "gpt-4o-mini", 10)
	high := route("assistant.chat", "openai", "gpt-4o", 20)

	store := &fakeRouteStore{routes: map[string][]models.AIFeatureRoute{
		"assistant.chat": {low, high},
	}}
	resolved := resolve(t, store, Request{Intent: models.IntentChat})

	if resolved.RouteID != high.ID {
		t.Error("equal specificity must resolve to the higher priority route")
	}
}

func TestResolve_NonFallbackBeatsFallback(t *testing.T) {
	t.Parallel()

	fallback := route("assistant.chat", "openai", "gpt-4o-mini", 10)
	fallback.Fallback = true
	primary := route("assistant.chat", "anthropic", "claude-sonnet", 10)

	store := &fakeRouteStore{routes: map[string][]models.AIFeatureRoute{
		"assistant.chat": {fallback, primary},
	}}
	resolved := resolve(t, store, Request{Intent: models.IntentChat})

	if resolved.RouteID != primary.ID {
		t.Error("with equal specificity and priority, non-fallback wins")
	}
}

func TestResolve_IntentFilter(t *testing.T) {
	t.Parallel()

	t.Run("disallowed intent excluded when alternatives exist", func(t *testing.T) {
		t.Parallel()

		open := route("insights.summary", "openai", "gpt-4o-mini", 0)
		restricted := route("insights.summary", "openai", "gpt-4o", 100)
		restricted.Constraints.DisallowedIntents = []string{models.IntentSummary}

		store := &fakeRouteStore{routes: map[string][]models.AIFeatureRoute{
			"insights.summary": {open, restricted},
		}}
		resolved := resolve(t, store, Request{Intent: models.IntentSummary})

		if resolved.RouteID != open.ID {
			t.Error("route disallowing the intent must lose to an unrestricted route")
		}
	})

	t.Run("filter ignored when it empties the candidate set", func(t *testing.T) {
		t.Parallel()

		// The only route disallows the intent; availability wins and the
		// disallow rule is knowingly ignored.
		only := route("insights.summary", "openai", "gpt-4o", 0)
		only.Constraints.DisallowedIntents = []string{models.IntentSummary}

		store := &fakeRouteStore{routes: map[string][]models.AIFeatureRoute{
			"insights.summary": {only},
		}}
		resolved := resolve(t, store, Request{Intent: models.IntentSummary})

		if resolved.Default || resolved.RouteID != only.ID {
			t.Error("intent filtering must fall back to the unfiltered candidate set")
		}
	})

	t.Run("allow-list respected", func(t *testing.T) {
		t.Parallel()

		listed := route("planning.generate", "openai", "gpt-4o", 0)
		listed.Constraints.AllowedIntents = []string{models.IntentPlanGeneration}
		unlisted := route("planning.generate", "openai", "gpt-4o-mini", 100)
		unlisted.Constraints.AllowedIntents = []string{models.IntentChecklist}

		store := &fakeRouteStore{routes: map[string][]models.AIFeatureRoute{
			"planning.generate": {listed, unlisted},
		}}
		resolved := resolve(t, store, Request{Intent: models.IntentPlanGeneration})

		if resolved.RouteID != listed.ID {
			t.Error("allow-listed route must win over a route whose list excludes the intent")
		}
	})
}

func TestFeatureForIntent(t *testing.T) {
	t.Parallel()

	if got := FeatureForIntent(models.IntentRiskAnalysis); got != "insights.risk" {
		t.Errorf("expected insights.risk, got %s", got)
	}
	if got := FeatureForIntent("unheard_of"); got != DefaultFeatureKey {
		t.Errorf("unknown intent must map to the default feature key, got %s", got)
	}
}
