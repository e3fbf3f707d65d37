package routing

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planforge/planforge/internal/models"
)

// Baked-in route used when no route is configured for a feature.
// Availability over strict correctness: a missing configuration row
// must not take the assistant down.
const (
	DefaultProvider = "openai"
	DefaultModelKey = "gpt-4o-mini"
)

// Specificity increments per matching qualifier
const (
	scoreProjectMatch = 3
	scoreSurfaceMatch = 2
	scoreAnySurface   = 1
)

// RouteStore is the read-only route configuration collaborator. It
// returns only routes that are enabled and whose provider and model
// rows are themselves enabled.
type RouteStore interface {
	EnabledRoutes(ctx context.Context, featureKey string) ([]models.AIFeatureRoute, error)
}

// Request identifies what a route is being resolved for
type Request struct {
	// FeatureKey may be empty; it is then derived from Intent.
	FeatureKey  string
	Intent      string
	SurfaceType *models.SurfaceType
	ProjectID   *uuid.UUID
}

// Resolver selects a provider+model for a request. Resolution is a pure
// function of the request and the current route configuration.
type Resolver struct {
	store  RouteStore
	logger *zap.Logger
}

// NewResolver creates a route resolver.
func NewResolver(store RouteStore, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

type scoredRoute struct {
	route       models.AIFeatureRoute
	specificity int
}

// Resolve picks the winning route: highest specificity, then highest
// priority, then non-fallback before fallback. With no usable route it
// returns the baked-in default instead of failing.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*models.ResolvedRoute, error) {
	featureKey := req.FeatureKey
	if featureKey == "" {
		featureKey = FeatureForIntent(req.Intent)
	}

	routes, err := r.store.EnabledRoutes(ctx, featureKey)
	if err != nil {
		return nil, fmt.Errorf("route lookup failed: %w", err)
	}

	candidates := scoreCandidates(routes, req)
	if len(candidates) == 0 {
		r.logger.Info("route_default_fallback",
			zap.String("feature_key", featureKey),
			zap.String("intent", req.Intent),
			zap.Int("configured_routes", len(routes)),
		)
		return defaultRoute(), nil
	}

	// Intent filtering is advisory: if it would eliminate every
	// candidate, resolution proceeds on the unfiltered set.
	filtered := filterByIntent(candidates, req.Intent)
	if len(filtered) == 0 {
		r.logger.Warn("route_intent_filter_ignored",
			zap.String("feature_key", featureKey),
			zap.String("intent", req.Intent),
		)
		filtered = candidates
	}

	winner := pickWinner(filtered)
	return &models.ResolvedRoute{
		Provider:    winner.Provider,
		ModelKey:    winner.ModelKey,
		RouteID:     winner.ID,
		Constraints: winner.Constraints,
	}, nil
}

// scoreCandidates drops routes qualified for a different project or
// surface and scores the rest.
func scoreCandidates(routes []models.AIFeatureRoute, req Request) []scoredRoute {
	var out []scoredRoute
	for _, route := range routes {
		if !route.Enabled {
			continue
		}
		score := 0
		if route.ProjectID != nil {
			if req.ProjectID == nil || *route.ProjectID != *req.ProjectID {
				continue
			}
			score += scoreProjectMatch
		}
		if route.SurfaceType != nil {
			if req.SurfaceType == nil || *route.SurfaceType != *req.SurfaceType {
				continue
			}
			score += scoreSurfaceMatch
		} else {
			score += scoreAnySurface
		}
		out = append(out, scoredRoute{route: route, specificity: score})
	}
	return out
}

func filterByIntent(candidates []scoredRoute, intent string) []scoredRoute {
	if intent == "" {
		return candidates
	}
	var out []scoredRoute
	for _, c := range candidates {
		if c.route.Constraints.AllowsIntent(intent) {
			out = append(out, c)
		}
	}
	return out
}

func pickWinner(candidates []scoredRoute) models.AIFeatureRoute {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].specificity != candidates[j].specificity {
			return candidates[i].specificity > candidates[j].specificity
		}
		if candidates[i].route.Priority != candidates[j].route.Priority {
			return candidates[i].route.Priority > candidates[j].route.Priority
		}
		if candidates[i].route.Fallback != candidates[j].route.Fallback {
			return !candidates[i].route.Fallback
		}
		// Stable final tie-break so resolution stays deterministic.
		return candidates[i].route.ID.String() < candidates[j].route.ID.String()
	})
	return candidates[0].route
}

func defaultRoute() *models.ResolvedRoute {
	return &models.ResolvedRoute{
		Provider: DefaultProvider,
		ModelKey: DefaultModelKey,
		Default:  true,
	}
}
