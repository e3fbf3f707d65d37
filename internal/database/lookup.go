package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/planforge/planforge/internal/models"
)

// LookupRepository serves permission-scoped reads for context assembly
// and tag resolution. Every query joins through project_members so rows
// the user cannot see never leave the database.
type LookupRepository struct {
	db *DB
}

// NewLookupRepository creates a new lookup repository
func NewLookupRepository(db *DB) *LookupRepository {
	return &LookupRepository{db: db}
}

// UserCanAccessProject reports whether the user is a member of the project
func (r *LookupRepository) UserCanAccessProject(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM project_members
			WHERE user_id = $1 AND project_id = $2
		)
	`
	if err := r.db.QueryRowContext(ctx, query, userID, projectID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check project access: %w", err)
	}
	return exists, nil
}

// Project retrieves a project the user is a member of
func (r *LookupRepository) Project(ctx context.Context, userID, projectID uuid.UUID) (*models.Project, error) {
	project := &models.Project{}
	query := `
		SELECT p.id, p.name, p.description, p.owner_id, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE p.id = $1 AND m.user_id = $2
	`
	err := r.db.QueryRowContext(ctx, query, projectID, userID).Scan(
		&project.ID,
		&project.Name,
		&project.Description,
		&project.OwnerID,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// TracksByIDs retrieves the requested tracks the user may see
func (r *LookupRepository) TracksByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT t.id, t.project_id, t.name, t.description, t.shared, t.authority_project_id, t.created_at
		FROM tracks t
		JOIN project_members m ON m.project_id = t.project_id
		WHERE t.id = ANY($1) AND m.user_id = $2
		ORDER BY t.id
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tracks []models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// ItemsByIDs retrieves the requested roadmap items the user may see
func (r *LookupRepository) ItemsByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT i.id, i.project_id, i.track_id, i.parent_id, i.title, i.body,
		       EXISTS (SELECT 1 FROM items c WHERE c.parent_id = i.id),
		       i.start_at, i.due_at, i.created_at
		FROM items i
		JOIN project_members m ON m.project_id = i.project_id
		WHERE i.id = ANY($1) AND m.user_id = $2
		ORDER BY i.id
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CollaborationEvents retrieves recent collaboration log rows, newest first
func (r *LookupRepository) CollaborationEvents(ctx context.Context, userID, projectID uuid.UUID, window *models.TimeWindow, limit int) ([]models.CollaborationEvent, error) {
	query := `
		SELECT e.id, e.project_id, e.actor_id, e.action, e.detail, e.occurred_at
		FROM collaboration_events e
		JOIN project_members m ON m.project_id = e.project_id
		WHERE e.project_id = $1 AND m.user_id = $2
		  AND ($3::timestamptz IS NULL OR e.occurred_at >= $3)
		  AND ($4::timestamptz IS NULL OR e.occurred_at <= $4)
		ORDER BY e.occurred_at DESC
		LIMIT $5
	`
	from, to := windowBounds(window)
	rows, err := r.db.QueryContext(ctx, query, projectID, userID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get collaboration events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.CollaborationEvent
	for rows.Next() {
		var e models.CollaborationEvent
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ActorID, &e.Action, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan collaboration event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GraphNodes retrieves dependency graph nodes for a project
func (r *LookupRepository) GraphNodes(ctx context.Context, userID, projectID uuid.UUID, limit int) ([]models.GraphNode, error) {
	query := `
		SELECT n.id, n.project_id, n.kind, n.label
		FROM graph_nodes n
		JOIN project_members m ON m.project_id = n.project_id
		WHERE n.project_id = $1 AND m.user_id = $2
		ORDER BY n.id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get graph nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []models.GraphNode
	for rows.Next() {
		var n models.GraphNode
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.Kind, &n.Label); err != nil {
			return nil, fmt.Errorf("failed to scan graph node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// GraphEdges retrieves dependency graph edges for a project
func (r *LookupRepository) GraphEdges(ctx context.Context, userID, projectID uuid.UUID, limit int) ([]models.GraphEdge, error) {
	query := `
		SELECT e.id, e.project_id, e.from_id, e.to_id, e.relation
		FROM graph_edges e
		JOIN project_members m ON m.project_id = e.project_id
		WHERE e.project_id = $1 AND m.user_id = $2
		ORDER BY e.id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get graph edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []models.GraphEdge
	for rows.Next() {
		var e models.GraphEdge
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.FromID, &e.ToID, &e.Relation); err != nil {
			return nil, fmt.Errorf("failed to scan graph edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// TrackedTasks retrieves execution tasks for a project
func (r *LookupRepository) TrackedTasks(ctx context.Context, userID, projectID uuid.UUID, limit int) ([]models.TrackedTask, error) {
	query := `
		SELECT t.id, t.project_id, t.item_id, t.title, t.state, t.assignee_id, t.created_at
		FROM tracked_tasks t
		JOIN project_members m ON m.project_id = t.project_id
		WHERE t.project_id = $1 AND m.user_id = $2
		ORDER BY t.created_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []models.TrackedTask
	for rows.Next() {
		var t models.TrackedTask
		var itemID, assigneeID uuid.NullUUID
		if err := rows.Scan(&t.ID, &t.ProjectID, &itemID, &t.Title, &t.State, &assigneeID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracked task: %w", err)
		}
		if itemID.Valid {
			t.ItemID = &itemID.UUID
		}
		if assigneeID.Valid {
			t.AssigneeID = &assigneeID.UUID
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// People retrieves collaborators visible in a project
func (r *LookupRepository) People(ctx context.Context, userID, projectID uuid.UUID, limit int) ([]models.Person, error) {
	query := `
		SELECT p.id, p.display_name, p.email
		FROM people p
		JOIN project_people pp ON pp.person_id = p.id
		JOIN project_members m ON m.project_id = pp.project_id
		WHERE pp.project_id = $1 AND m.user_id = $2
		ORDER BY p.display_name, p.id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get people: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var people []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Email); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// Deadlines retrieves dated commitments for a project
func (r *LookupRepository) Deadlines(ctx context.Context, userID, projectID uuid.UUID, window *models.TimeWindow, limit int) ([]models.Deadline, error) {
	query := `
		SELECT d.id, d.project_id, d.item_id, d.title, d.due_at
		FROM deadlines d
		JOIN project_members m ON m.project_id = d.project_id
		WHERE d.project_id = $1 AND m.user_id = $2
		  AND ($3::timestamptz IS NULL OR d.due_at >= $3)
		  AND ($4::timestamptz IS NULL OR d.due_at <= $4)
		ORDER BY d.due_at
		LIMIT $5
	`
	from, to := windowBounds(window)
	rows, err := r.db.QueryContext(ctx, query, projectID, userID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get deadlines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deadlines []models.Deadline
	for rows.Next() {
		var d models.Deadline
		var itemID uuid.NullUUID
		if err := rows.Scan(&d.ID, &d.ProjectID, &itemID, &d.Title, &d.DueAt); err != nil {
			return nil, fmt.Errorf("failed to scan deadline: %w", err)
		}
		if itemID.Valid {
			d.ItemID = &itemID.UUID
		}
		deadlines = append(deadlines, d)
	}
	return deadlines, rows.Err()
}

// ProjectTracks retrieves every track of a project the user may see
func (r *LookupRepository) ProjectTracks(ctx context.Context, userID, projectID uuid.UUID) ([]models.Track, error) {
	query := `
		SELECT t.id, t.project_id, t.name, t.description, t.shared, t.authority_project_id, t.created_at
		FROM tracks t
		JOIN project_members m ON m.project_id = t.project_id
		WHERE t.project_id = $1 AND m.user_id = $2
		ORDER BY t.id
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project tracks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tracks []models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// ProjectItems retrieves every roadmap item of a project the user may see
func (r *LookupRepository) ProjectItems(ctx context.Context, userID, projectID uuid.UUID) ([]models.Item, error) {
	query := `
		SELECT i.id, i.project_id, i.track_id, i.parent_id, i.title, i.body,
		       EXISTS (SELECT 1 FROM items c WHERE c.parent_id = i.id),
		       i.start_at, i.due_at, i.created_at
		FROM items i
		JOIN project_members m ON m.project_id = i.project_id
		WHERE i.project_id = $1 AND m.user_id = $2
		ORDER BY i.id
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ProjectPeople retrieves every person visible in a project
func (r *LookupRepository) ProjectPeople(ctx context.Context, userID, projectID uuid.UUID) ([]models.Person, error) {
	return r.People(ctx, userID, projectID, 1000)
}

// SharedTracks retrieves shared tracks visible to the user across all
// their projects
func (r *LookupRepository) SharedTracks(ctx context.Context, userID uuid.UUID) ([]models.Track, error) {
	query := `
		SELECT DISTINCT t.id, t.project_id, t.name, t.description, t.shared, t.authority_project_id, t.created_at
		FROM tracks t
		JOIN project_members m ON m.project_id = t.project_id
		WHERE t.shared = TRUE AND m.user_id = $1
		ORDER BY t.id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get shared tracks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tracks []models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// GlobalPeople retrieves people visible to the user across all their
// projects. Used only on surfaces with no project binding.
func (r *LookupRepository) GlobalPeople(ctx context.Context, userID uuid.UUID) ([]models.Person, error) {
	query := `
		SELECT DISTINCT p.id, p.display_name, p.email
		FROM people p
		JOIN project_people pp ON pp.person_id = p.id
		JOIN project_members m ON m.project_id = pp.project_id
		WHERE m.user_id = $1
		ORDER BY p.id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get people: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var people []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Email); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

func scanTrack(rows *sql.Rows) (models.Track, error) {
	var t models.Track
	var authority uuid.NullUUID
	if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Shared, &authority, &t.CreatedAt); err != nil {
		return models.Track{}, fmt.Errorf("failed to scan track: %w", err)
	}
	if authority.Valid {
		t.AuthorityProjectID = &authority.UUID
	}
	return t, nil
}

func scanItem(rows *sql.Rows) (models.Item, error) {
	var i models.Item
	var parentID uuid.NullUUID
	var startAt, dueAt sql.NullTime
	if err := rows.Scan(&i.ID, &i.ProjectID, &i.TrackID, &parentID, &i.Title, &i.Body, &i.HasChildren, &startAt, &dueAt, &i.CreatedAt); err != nil {
		return models.Item{}, fmt.Errorf("failed to scan item: %w", err)
	}
	if parentID.Valid {
		i.ParentID = &parentID.UUID
	}
	if startAt.Valid {
		i.StartAt = &startAt.Time
	}
	if dueAt.Valid {
		i.DueAt = &dueAt.Time
	}
	return i, nil
}

func windowBounds(window *models.TimeWindow) (any, any) {
	if window == nil {
		return nil, nil
	}
	return window.From, window.To
}
