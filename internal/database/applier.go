package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/internal/models"
	"github.com/planforge/planforge/internal/policy"
)

// EntityApplier turns confirmed draft content into authoritative rows.
// It is the only write path from AI output into planning data, and it
// only ever runs inside a user-confirmed apply.
type EntityApplier struct {
	db       *DB
	enforcer *policy.Enforcer
}

// NewEntityApplier creates a new entity applier
func NewEntityApplier(db *DB, enforcer *policy.Enforcer) *EntityApplier {
	return &EntityApplier{db: db, enforcer: enforcer}
}

// Apply creates entities for the selected elements (nil means the whole
// draft) and returns their ids. All inserts run in one transaction.
func (a *EntityApplier) Apply(ctx context.Context, draft *models.AIDraft, elements []int) ([]uuid.UUID, error) {
	// AI output without draft provenance is bypassing the lifecycle; it
	// never reaches the database.
	if draft.Provenance.ContextHash == "" {
		return nil, a.enforcer.AssertNoDirectWrite(models.EntityItem, "create")
	}
	// Every write the applier performs appends new rows; collaboration
	// logs in particular are never updated or deleted from here.
	if err := a.enforcer.AssertCollaborationAppendOnly("create"); err != nil {
		return nil, err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := a.applyInTx(ctx, tx, draft, elements)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit apply: %w", err)
	}
	return created, nil
}

func (a *EntityApplier) applyInTx(ctx context.Context, tx *sql.Tx, draft *models.AIDraft, elements []int) ([]uuid.UUID, error) {
	switch draft.Type {
	case models.DraftRoadmapItem:
		id, err := a.insertItem(ctx, tx, draft, draft.Content.Title, draft.Content.Body, nil, nil)
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{id}, nil

	case models.DraftChildItem, models.DraftBreakdown:
		parentID := firstScopedItem(draft.Scope)
		return a.insertItemElements(ctx, tx, draft, elements, parentID)

	case models.DraftTimeline:
		return a.insertItemElements(ctx, tx, draft, elements, nil)

	case models.DraftTaskList, models.DraftChecklist:
		return a.insertTaskElements(ctx, tx, draft, elements)

	case models.DraftDocument, models.DraftSummary, models.DraftInsight, models.DraftRiskAnalysis:
		id, err := a.insertDocument(ctx, tx, draft)
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{id}, nil

	default:
		return nil, fmt.Errorf("cannot apply draft type %s", draft.Type)
	}
}

func (a *EntityApplier) insertItemElements(ctx context.Context, tx *sql.Tx, draft *models.AIDraft, elements []int, parentID *uuid.UUID) ([]uuid.UUID, error) {
	var created []uuid.UUID
	for _, el := range selectElements(draft.Content.Elements, elements) {
		id, err := a.insertItem(ctx, tx, draft, el.Title, el.Body, el.DueAt, parentID)
		if err != nil {
			return nil, err
		}
		created = append(created, id)
	}
	return created, nil
}

func (a *EntityApplier) insertItem(ctx context.Context, tx *sql.Tx, draft *models.AIDraft, title, body string, dueAt *time.Time, parentID *uuid.UUID) (uuid.UUID, error) {
	if draft.Scope.ProjectID == nil {
		return uuid.Nil, fmt.Errorf("draft scope has no project")
	}
	var trackID *uuid.UUID
	if len(draft.Scope.TrackIDs) > 0 {
		trackID = &draft.Scope.TrackIDs[0]
	}

	id := uuid.New()
	query := `
		INSERT INTO items (id, project_id, track_id, parent_id, title, body, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		id, *draft.Scope.ProjectID, trackID, parentID, title, body, dueAt, time.Now(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create item: %w", err)
	}
	return id, nil
}

func (a *EntityApplier) insertTaskElements(ctx context.Context, tx *sql.Tx, draft *models.AIDraft, elements []int) ([]uuid.UUID, error) {
	if draft.Scope.ProjectID == nil {
		return nil, fmt.Errorf("draft scope has no project")
	}
	itemID := firstScopedItem(draft.Scope)

	var created []uuid.UUID
	query := `
		INSERT INTO tracked_tasks (id, project_id, item_id, title, state, created_at)
		VALUES ($1, $2, $3, $4, 'open', $5)
	`
	for _, el := range selectElements(draft.Content.Elements, elements) {
		id := uuid.New()
		if _, err := tx.ExecContext(ctx, query, id, *draft.Scope.ProjectID, itemID, el.Title, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
		created = append(created, id)
	}
	return created, nil
}

func (a *EntityApplier) insertDocument(ctx context.Context, tx *sql.Tx, draft *models.AIDraft) (uuid.UUID, error) {
	id := uuid.New()
	query := `
		INSERT INTO documents (id, project_id, author_id, kind, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		id, draft.Scope.ProjectID, draft.UserID, string(draft.Type),
		draft.Content.Title, draft.Content.Body, time.Now(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create document: %w", err)
	}
	return id, nil
}

// selectElements picks the elements addressed by the selection; a nil
// selection means every element.
func selectElements(all []models.DraftElement, selection []int) []models.DraftElement {
	if selection == nil {
		return all
	}
	out := make([]models.DraftElement, 0, len(selection))
	for _, idx := range selection {
		if idx >= 0 && idx < len(all) {
			out = append(out, all[idx])
		}
	}
	return out
}

func firstScopedItem(scope models.ContextScope) *uuid.UUID {
	if len(scope.ItemIDs) == 0 {
		return nil
	}
	return &scope.ItemIDs[0]
}
