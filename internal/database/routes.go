package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/internal/models"
)

// RouteRepository handles AI feature route configuration
type RouteRepository struct {
	db *DB
}

// NewRouteRepository creates a new route repository
func NewRouteRepository(db *DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// EnabledRoutes returns the enabled routes for a feature key whose
// provider and model rows are themselves enabled. Disabled rows at any
// level make the route invisible to resolution.
func (r *RouteRepository) EnabledRoutes(ctx context.Context, featureKey string) ([]models.AIFeatureRoute, error) {
	query := `
		SELECT fr.id, fr.feature_key, fr.surface_type, fr.project_id,
		       p.name, m.key, fr.enabled, fr.priority, fr.fallback,
		       fr.constraints, fr.created_at, fr.updated_at
		FROM ai_feature_routes fr
		JOIN ai_providers p ON p.id = fr.provider_id
		JOIN ai_models m ON m.id = fr.model_id
		WHERE fr.feature_key = $1
		  AND fr.enabled = TRUE AND p.enabled = TRUE AND m.enabled = TRUE
		ORDER BY fr.id
	`
	rows, err := r.db.QueryContext(ctx, query, featureKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get feature routes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var routes []models.AIFeatureRoute
	for rows.Next() {
		var route models.AIFeatureRoute
		var surfaceType sql.NullString
		var projectID uuid.NullUUID
		var constraintsJSON []byte
		err := rows.Scan(
			&route.ID,
			&route.FeatureKey,
			&surfaceType,
			&projectID,
			&route.Provider,
			&route.ModelKey,
			&route.Enabled,
			&route.Priority,
			&route.Fallback,
			&constraintsJSON,
			&route.CreatedAt,
			&route.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature route: %w", err)
		}
		if surfaceType.Valid {
			st := models.SurfaceType(surfaceType.String)
			route.SurfaceType = &st
		}
		if projectID.Valid {
			route.ProjectID = &projectID.UUID
		}
		if len(constraintsJSON) > 0 {
			if err := json.Unmarshal(constraintsJSON, &route.Constraints); err != nil {
				return nil, fmt.Errorf("failed to unmarshal route constraints: %w", err)
			}
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// ListRoutes returns every configured route, enabled or not. Used by
// the configure CLI.
func (r *RouteRepository) ListRoutes(ctx context.Context) ([]models.AIFeatureRoute, error) {
	query := `
		SELECT fr.id, fr.feature_key, fr.surface_type, fr.project_id,
		       p.name, m.key, fr.enabled, fr.priority, fr.fallback,
		       fr.constraints, fr.created_at, fr.updated_at
		FROM ai_feature_routes fr
		JOIN ai_providers p ON p.id = fr.provider_id
		JOIN ai_models m ON m.id = fr.model_id
		ORDER BY fr.feature_key, fr.priority DESC, fr.id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature routes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var routes []models.AIFeatureRoute
	for rows.Next() {
		var route models.AIFeatureRoute
		var surfaceType sql.NullString
		var projectID uuid.NullUUID
		var constraintsJSON []byte
		err := rows.Scan(
			&route.ID,
			&route.FeatureKey,
			&surfaceType,
			&projectID,
			&route.Provider,
			&route.ModelKey,
			&route.Enabled,
			&route.Priority,
			&route.Fallback,
			&constraintsJSON,
			&route.CreatedAt,
			&route.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature route: %w", err)
		}
		if surfaceType.Valid {
			st := models.SurfaceType(surfaceType.String)
			route.SurfaceType = &st
		}
		if projectID.Valid {
			route.ProjectID = &projectID.UUID
		}
		if len(constraintsJSON) > 0 {
			if err := json.Unmarshal(constraintsJSON, &route.Constraints); err != nil {
				return nil, fmt.Errorf("failed to unmarshal route constraints: %w", err)
			}
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// UpsertProvider creates or re-enables a provider row and returns its id
func (r *RouteRepository) UpsertProvider(ctx context.Context, name string, enabled bool) (uuid.UUID, error) {
	var id uuid.UUID
	query := `
		INSERT INTO ai_providers (id, name, enabled, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, uuid.New(), name, enabled, time.Now()).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert provider: %w", err)
	}
	return id, nil
}

// UpsertModel creates or updates a model row under a provider and
// returns its id
func (r *RouteRepository) UpsertModel(ctx context.Context, providerID uuid.UUID, model models.AIModelRow) (uuid.UUID, error) {
	var id uuid.UUID
	query := `
		INSERT INTO ai_models (id, provider_id, key, enabled, max_context_tokens, max_output_tokens, supports_streaming)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_id, key) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			max_context_tokens = EXCLUDED.max_context_tokens,
			max_output_tokens = EXCLUDED.max_output_tokens,
			supports_streaming = EXCLUDED.supports_streaming
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		uuid.New(), providerID, model.Key, model.Enabled,
		model.MaxContextTokens, model.MaxOutputTokens, model.SupportsStreaming,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert model: %w", err)
	}
	return id, nil
}

// CreateRoute inserts a feature route
func (r *RouteRepository) CreateRoute(ctx context.Context, route *models.AIFeatureRoute, providerID, modelID uuid.UUID) error {
	constraintsJSON, err := json.Marshal(route.Constraints)
	if err != nil {
		return fmt.Errorf("failed to marshal route constraints: %w", err)
	}

	var surfaceType any
	if route.SurfaceType != nil {
		surfaceType = string(*route.SurfaceType)
	}

	now := time.Now()
	query := `
		INSERT INTO ai_feature_routes
			(id, feature_key, surface_type, project_id, provider_id, model_id,
			 enabled, priority, fallback, constraints, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		route.ID, route.FeatureKey, surfaceType, route.ProjectID, providerID, modelID,
		route.Enabled, route.Priority, route.Fallback, constraintsJSON, now, now,
	).Scan(&route.CreatedAt, &route.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create feature route: %w", err)
	}
	return nil
}

// SetRouteEnabled toggles a route
func (r *RouteRepository) SetRouteEnabled(ctx context.Context, routeID uuid.UUID, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ai_feature_routes SET enabled = $1, updated_at = $2 WHERE id = $3`,
		enabled, time.Now(), routeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update feature route: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("feature route not found: %s", routeID)
	}
	return nil
}
