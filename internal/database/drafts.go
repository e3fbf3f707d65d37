package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/planforge/planforge/internal/models"
)

// DraftRepository handles AI draft persistence. Drafts live in their
// own table, fully separate from authoritative planning data.
type DraftRepository struct {
	db *DB
}

// NewDraftRepository creates a new draft repository
func NewDraftRepository(db *DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Create inserts a new draft
func (r *DraftRepository) Create(ctx context.Context, draft *models.AIDraft) error {
	contentJSON, err := json.Marshal(draft.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal draft content: %w", err)
	}
	provenanceJSON, err := json.Marshal(draft.Provenance)
	if err != nil {
		return fmt.Errorf("failed to marshal draft provenance: %w", err)
	}
	scopeJSON, err := json.Marshal(draft.Scope)
	if err != nil {
		return fmt.Errorf("failed to marshal draft scope: %w", err)
	}
	surfaceJSON, err := json.Marshal(draft.Surface)
	if err != nil {
		return fmt.Errorf("failed to marshal draft surface: %w", err)
	}

	query := `
		INSERT INTO ai_drafts
			(id, user_id, type, status, intent, content, provenance, surface, scope,
			 applied_entity_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		draft.ID,
		draft.UserID,
		draft.Type,
		draft.Status,
		draft.Intent,
		contentJSON,
		provenanceJSON,
		surfaceJSON,
		scopeJSON,
		pq.Array(draft.AppliedEntityIDs),
		draft.CreatedAt,
		draft.UpdatedAt,
	).Scan(&draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

// GetByID retrieves one of the user's drafts. Scoping by user id in the
// query keeps other users' drafts unreachable.
func (r *DraftRepository) GetByID(ctx context.Context, userID, draftID uuid.UUID) (*models.AIDraft, error) {
	query := `
		SELECT id, user_id, type, status, intent, content, provenance, surface, scope,
		       applied_entity_ids, created_at, updated_at
		FROM ai_drafts
		WHERE id = $1 AND user_id = $2
	`
	row := r.db.QueryRowContext(ctx, query, draftID, userID)
	draft, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("draft not found: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// Update persists a draft's current state
func (r *DraftRepository) Update(ctx context.Context, draft *models.AIDraft) error {
	contentJSON, err := json.Marshal(draft.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal draft content: %w", err)
	}

	query := `
		UPDATE ai_drafts
		SET status = $1, content = $2, applied_entity_ids = $3, updated_at = $4
		WHERE id = $5 AND user_id = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		draft.Status,
		contentJSON,
		pq.Array(draft.AppliedEntityIDs),
		time.Now(),
		draft.ID,
		draft.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("draft not found: %s", draft.ID)
	}
	return nil
}

// ListByUser retrieves the user's drafts, newest first, with the total
// count for pagination
func (r *DraftRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.AIDraft, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ai_drafts WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count drafts: %w", err)
	}

	query := `
		SELECT id, user_id, type, status, intent, content, provenance, surface, scope,
		       applied_entity_ids, created_at, updated_at
		FROM ai_drafts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var drafts []*models.AIDraft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, 0, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, total, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*models.AIDraft, error) {
	draft := &models.AIDraft{}
	var contentJSON, provenanceJSON, surfaceJSON, scopeJSON []byte
	var appliedIDs pq.StringArray

	err := row.Scan(
		&draft.ID,
		&draft.UserID,
		&draft.Type,
		&draft.Status,
		&draft.Intent,
		&contentJSON,
		&provenanceJSON,
		&surfaceJSON,
		&scopeJSON,
		&appliedIDs,
		&draft.CreatedAt,
		&draft.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan draft: %w", err)
	}

	if err := json.Unmarshal(contentJSON, &draft.Content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft content: %w", err)
	}
	if err := json.Unmarshal(provenanceJSON, &draft.Provenance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft provenance: %w", err)
	}
	if err := json.Unmarshal(surfaceJSON, &draft.Surface); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft surface: %w", err)
	}
	if err := json.Unmarshal(scopeJSON, &draft.Scope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft scope: %w", err)
	}
	for _, raw := range appliedIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse applied entity id: %w", err)
		}
		draft.AppliedEntityIDs = append(draft.AppliedEntityIDs, id)
	}
	return draft, nil
}
