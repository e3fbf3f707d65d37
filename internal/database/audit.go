package database

import (
	"context"
	"fmt"

	"github.com/planforge/planforge/internal/models"
)

// AuditRepository appends AI interaction rows. The table is append-only;
// there are no update or delete operations.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends one interaction row
func (r *AuditRepository) Record(ctx context.Context, interaction models.AIInteraction) error {
	query := `
		INSERT INTO ai_interactions
			(id, user_id, project_id, intent, feature_key, provider, model_key,
			 route_id, prompt_tokens, completion_tokens, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		interaction.ID,
		interaction.UserID,
		interaction.ProjectID,
		interaction.Intent,
		interaction.FeatureKey,
		interaction.Provider,
		interaction.ModelKey,
		interaction.RouteID,
		interaction.PromptTokens,
		interaction.CompletionTokens,
		interaction.LatencyMS,
		interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record AI interaction: %w", err)
	}
	return nil
}
