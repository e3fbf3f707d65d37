package models

import (
	"time"

	"github.com/google/uuid"
)

// AIInteraction is one append-only audit row per AI call. Audit writes
// are best-effort; a failed write never fails the user-facing operation.
type AIInteraction struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	ProjectID        *uuid.UUID `json:"project_id,omitempty"`
	Intent           string     `json:"intent"`
	FeatureKey       string     `json:"feature_key"`
	Provider         string     `json:"provider"`
	ModelKey         string     `json:"model_key"`
	RouteID          uuid.UUID  `json:"route_id"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	LatencyMS        int64      `json:"latency_ms"`
	CreatedAt        time.Time  `json:"created_at"`
}
