package models

import (
	"time"

	"github.com/google/uuid"
)

// AIProviderRow is a configured model vendor
type AIProviderRow struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// AIModelRow is a configured model under a provider
type AIModelRow struct {
	ID                uuid.UUID `json:"id"`
	ProviderID        uuid.UUID `json:"provider_id"`
	Key               string    `json:"key"`
	Enabled           bool      `json:"enabled"`
	MaxContextTokens  int       `json:"max_context_tokens"`
	MaxOutputTokens   int       `json:"max_output_tokens"`
	SupportsStreaming bool      `json:"supports_streaming"`
}

// RouteConstraints bound what a route may be used for
type RouteConstraints struct {
	MaxContextTokens  int      `json:"max_context_tokens,omitempty"`
	MaxOutputTokens   int      `json:"max_output_tokens,omitempty"`
	AllowedIntents    []string `json:"allowed_intents,omitempty"`
	DisallowedIntents []string `json:"disallowed_intents,omitempty"`
}

// AllowsIntent applies the allow/disallow lists. An empty allow-list
// permits every intent not explicitly disallowed.
func (c RouteConstraints) AllowsIntent(intent string) bool {
	if intent == "" {
		return true
	}
	for _, d := range c.DisallowedIntents {
		if d == intent {
			return false
		}
	}
	if len(c.AllowedIntents) == 0 {
		return true
	}
	for _, a := range c.AllowedIntents {
		if a == intent {
			return true
		}
	}
	return false
}

// AIFeatureRoute maps a feature key to a provider+model. SurfaceType and
// ProjectID act as specificity qualifiers when both are optional.
type AIFeatureRoute struct {
	ID          uuid.UUID        `json:"id"`
	FeatureKey  string           `json:"feature_key"`
	SurfaceType *SurfaceType     `json:"surface_type,omitempty"`
	ProjectID   *uuid.UUID       `json:"project_id,omitempty"`
	Provider    string           `json:"provider"`
	ModelKey    string           `json:"model_key"`
	Enabled     bool             `json:"enabled"`
	Priority    int              `json:"priority"`
	Fallback    bool             `json:"fallback"`
	Constraints RouteConstraints `json:"constraints"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ResolvedRoute is the outcome of route resolution
type ResolvedRoute struct {
	Provider          string           `json:"provider"`
	ModelKey          string           `json:"model_key"`
	RouteID           uuid.UUID        `json:"route_id"`
	Constraints       RouteConstraints `json:"constraints"`
	SupportsStreaming bool             `json:"supports_streaming"`
	// Default is true when no route was configured and the resolver fell
	// back to its baked-in route.
	Default bool `json:"default"`
}
