package assembly

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/planforge/planforge/internal/models"
)

// TruncationMarker is appended to every field cut at the budget cap
const TruncationMarker = "…"

// Lookup is the read-only, permission-scoped data collaborator. Every
// query returns only rows the requesting user may access.
type Lookup interface {
	UserCanAccessProject(ctx context.Context, userID, projectID uuid.UUID) (bool, error)
	Project(ctx context.Context, userID, projectID uuid.UUID) (*models.Project, error)
	TracksByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Track, error)
	ItemsByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Item, error)
	CollaborationEvents(ctx context.Context, userID, projectID uuid.UUID, window *models.TimeWindow, limit int) ([]models.CollaborationEvent, error)
	GraphNodes(ctx context.Context, userID, projectID uuid.UUID, limit int) ([]models.GraphNode, error)
	GraphEdges(ctx context.Context, userID, projectID uuid.UUID, limit int) ([]models.GraphEdge, error)
	TrackedTasks(ctx context.Context, userID, projectID uuid.UUID, limit int) ([]models.TrackedTask, error)
	People(ctx context.Context, userID, projectID uuid.UUID, limit int) ([]models.Person, error)
	Deadlines(ctx context.Context, userID, projectID uuid.UUID, window *models.TimeWindow, limit int) ([]models.Deadline, error)
}

// PermissionError is returned when the requesting user may not access
// the named project. The assembler fails closed: no partial context is
// ever returned alongside it.
type PermissionError struct {
	UserID    uuid.UUID
	ProjectID uuid.UUID
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s has no access to project %s", e.UserID, e.ProjectID)
}

// UserMessage returns the short message safe to show an end user.
func (e *PermissionError) UserMessage() string {
	return "You do not have access to this project."
}

// Assembler builds bounded, permission-checked context snapshots.
// Request-scoped and stateless; safe for concurrent use.
type Assembler struct {
	lookup  Lookup
	guard   *Guard
	budgets *BudgetTable
	logger  *zap.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(lookup Lookup, guard *Guard, budgets *BudgetTable, logger *zap.Logger) *Assembler {
	return &Assembler{lookup: lookup, guard: guard, budgets: budgets, logger: logger}
}

// Assemble builds a snapshot for the scope under the intent's budget.
// Budget overruns are soft: recorded on the result and logged, never
// fatal. Surface and permission failures abort with no partial context.
func (a *Assembler) Assemble(ctx context.Context, userID uuid.UUID, surface models.ChatSurface, scope models.ContextScope, intent string) (*models.AssembledContext, error) {
	if err := a.guard.Check(surface, scope); err != nil {
		return nil, err
	}

	budget := a.budgets.ForIntent(intent)

	if scope.ProjectID != nil {
		ok, err := a.lookup.UserCanAccessProject(ctx, userID, *scope.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("project access check failed: %w", err)
		}
		if !ok {
			return nil, &PermissionError{UserID: userID, ProjectID: *scope.ProjectID}
		}
	}

	// Input id lists are capped before querying; over-budget requests are
	// recorded as violations, never fetched and discarded.
	var violations []models.BudgetViolation
	trackIDs := capIDs(scope.TrackIDs, budget.MaxTracks, "tracks", &violations)
	itemIDs := capIDs(scope.ItemIDs, budget.MaxItems, "items", &violations)

	result := &models.AssembledContext{
		Scope:       scope,
		AssembledAt: time.Now().UTC(),
		Budget:      budget,
	}

	// Sub-fetches are independent and run in parallel; ordering is
	// restored afterwards so the result is deterministic.
	g, gctx := errgroup.WithContext(ctx)

	if scope.ProjectID != nil {
		projectID := *scope.ProjectID
		g.Go(func() error {
			project, err := a.lookup.Project(gctx, userID, projectID)
			if err != nil {
				return fmt.Errorf("project fetch failed: %w", err)
			}
			if project != nil {
				result.Projects = []models.Project{*project}
			}
			return nil
		})
		if scope.IncludeCollaboration {
			g.Go(func() error {
				events, err := a.lookup.CollaborationEvents(gctx, userID, projectID, scope.Window, budget.MaxCollaborationEvents)
				if err != nil {
					return fmt.Errorf("collaboration fetch failed: %w", err)
				}
				result.Collaboration = events
				return nil
			})
		}
		if scope.IncludeGraph {
			g.Go(func() error {
				nodes, err := a.lookup.GraphNodes(gctx, userID, projectID, budget.MaxGraphNodes)
				if err != nil {
					return fmt.Errorf("graph node fetch failed: %w", err)
				}
				result.GraphNodes = nodes
				return nil
			})
			g.Go(func() error {
				edges, err := a.lookup.GraphEdges(gctx, userID, projectID, budget.MaxGraphEdges)
				if err != nil {
					return fmt.Errorf("graph edge fetch failed: %w", err)
				}
				result.GraphEdges = edges
				return nil
			})
		}
		if scope.IncludeTaskTracking {
			g.Go(func() error {
				tasks, err := a.lookup.TrackedTasks(gctx, userID, projectID, budget.MaxTrackedTasks)
				if err != nil {
					return fmt.Errorf("tracked task fetch failed: %w", err)
				}
				result.TrackedTasks = tasks
				return nil
			})
		}
		if scope.IncludePeople {
			g.Go(func() error {
				people, err := a.lookup.People(gctx, userID, projectID, budget.MaxPeople)
				if err != nil {
					return fmt.Errorf("people fetch failed: %w", err)
				}
				result.People = people
				return nil
			})
		}
		if scope.IncludeDeadlines {
			g.Go(func() error {
				deadlines, err := a.lookup.Deadlines(gctx, userID, projectID, scope.Window, budget.MaxDeadlines)
				if err != nil {
					return fmt.Errorf("deadline fetch failed: %w", err)
				}
				result.Deadlines = deadlines
				return nil
			})
		}
	}
	if len(trackIDs) > 0 {
		g.Go(func() error {
			tracks, err := a.lookup.TracksByIDs(gctx, userID, trackIDs)
			if err != nil {
				return fmt.Errorf("track fetch failed: %w", err)
			}
			result.Tracks = tracks
			return nil
		})
	}
	if len(itemIDs) > 0 {
		g.Go(func() error {
			items, err := a.lookup.ItemsByIDs(gctx, userID, itemIDs)
			if err != nil {
				return fmt.Errorf("item fetch failed: %w", err)
			}
			result.Items = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The id-addressed fetches above are scoped by membership only; the
	// rows that came back still have to respect the surface boundary.
	if err := a.guard.CheckFetched(surface, result); err != nil {
		return nil, err
	}
	if err := a.checkComposition(intent, result.Items); err != nil {
		return nil, err
	}

	sortCollections(result)
	truncateFields(result, budget.MaxFieldLength)
	violations = append(violations, aggregateViolations(result, budget)...)
	result.Violations = violations
	result.Hash = contentHash(result)

	for _, v := range violations {
		a.logger.Warn("context_budget_violation",
			zap.String("intent", intent),
			zap.String("kind", v.Kind),
			zap.Int("limit", v.Limit),
			zap.Int("actual", v.Actual),
		)
	}

	return result, nil
}

// checkComposition enforces the item-composition invariants on the
// assembled item set. Timeline contexts may not contain an item that is
// both a child and a parent, and nesting depth is bounded everywhere.
func (a *Assembler) checkComposition(intent string, items []models.Item) error {
	enforcer := a.guard.Enforcer()
	if intent == models.IntentTimeline {
		for _, item := range items {
			if err := enforcer.AssertTimelineComposition(item); err != nil {
				return err
			}
		}
	}
	return enforcer.AssertCompositionDepth(itemDepth(items))
}

// itemDepth is the longest parent chain within the item set. Chains are
// walked at most len(items) steps so a corrupt cycle cannot loop.
func itemDepth(items []models.Item) int {
	parents := make(map[uuid.UUID]*uuid.UUID, len(items))
	for _, item := range items {
		parents[item.ID] = item.ParentID
	}
	max := 0
	for _, item := range items {
		depth := 1
		parentID := item.ParentID
		for steps := 0; parentID != nil && steps < len(items); steps++ {
			next, ok := parents[*parentID]
			if !ok {
				break
			}
			depth++
			parentID = next
		}
		if depth > max {
			max = depth
		}
	}
	return max
}

// capIDs slices ids to max, recording a violation when the request
// exceeded the budget.
func capIDs(ids []uuid.UUID, max int, kind string, violations *[]models.BudgetViolation) []uuid.UUID {
	if len(ids) <= max {
		return ids
	}
	*violations = append(*violations, models.BudgetViolation{
		Kind:   kind + "_requested",
		Limit:  max,
		Actual: len(ids),
	})
	return ids[:max]
}

// truncate cuts s at max runes, appending the truncation marker.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + TruncationMarker
}

func truncateFields(c *models.AssembledContext, max int) {
	for i := range c.Projects {
		c.Projects[i].Description = truncate(c.Projects[i].Description, max)
	}
	for i := range c.Tracks {
		c.Tracks[i].Description = truncate(c.Tracks[i].Description, max)
	}
	for i := range c.Items {
		c.Items[i].Title = truncate(c.Items[i].Title, max)
		c.Items[i].Body = truncate(c.Items[i].Body, max)
	}
	for i := range c.Collaboration {
		c.Collaboration[i].Detail = truncate(c.Collaboration[i].Detail, max)
	}
	for i := range c.GraphNodes {
		c.GraphNodes[i].Label = truncate(c.GraphNodes[i].Label, max)
	}
	for i := range c.TrackedTasks {
		c.TrackedTasks[i].Title = truncate(c.TrackedTasks[i].Title, max)
	}
	for i := range c.Deadlines {
		c.Deadlines[i].Title = truncate(c.Deadlines[i].Title, max)
	}
}

// sortCollections orders every collection by id so parallel fetch order
// never leaks into the result.
func sortCollections(c *models.AssembledContext) {
	sort.Slice(c.Tracks, func(i, j int) bool { return c.Tracks[i].ID.String() < c.Tracks[j].ID.String() })
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ID.String() < c.Items[j].ID.String() })
	sort.Slice(c.Collaboration, func(i, j int) bool {
		return c.Collaboration[i].ID.String() < c.Collaboration[j].ID.String()
	})
	sort.Slice(c.GraphNodes, func(i, j int) bool { return c.GraphNodes[i].ID.String() < c.GraphNodes[j].ID.String() })
	sort.Slice(c.GraphEdges, func(i, j int) bool { return c.GraphEdges[i].ID.String() < c.GraphEdges[j].ID.String() })
	sort.Slice(c.TrackedTasks, func(i, j int) bool { return c.TrackedTasks[i].ID.String() < c.TrackedTasks[j].ID.String() })
	sort.Slice(c.People, func(i, j int) bool { return c.People[i].ID.String() < c.People[j].ID.String() })
	sort.Slice(c.Deadlines, func(i, j int) bool { return c.Deadlines[i].ID.String() < c.Deadlines[j].ID.String() })
}

// aggregateViolations re-checks populated counts and total text usage
// against the budget after assembly.
func aggregateViolations(c *models.AssembledContext, budget models.ContextBudget) []models.BudgetViolation {
	var out []models.BudgetViolation
	check := func(kind string, actual, limit int) {
		if actual > limit {
			out = append(out, models.BudgetViolation{Kind: kind, Limit: limit, Actual: actual})
		}
	}
	check("projects", len(c.Projects), budget.MaxProjects)
	check("tracks", len(c.Tracks), budget.MaxTracks)
	check("items", len(c.Items), budget.MaxItems)
	check("collaboration_events", len(c.Collaboration), budget.MaxCollaborationEvents)
	check("graph_nodes", len(c.GraphNodes), budget.MaxGraphNodes)
	check("graph_edges", len(c.GraphEdges), budget.MaxGraphEdges)
	check("tracked_tasks", len(c.TrackedTasks), budget.MaxTrackedTasks)
	check("people", len(c.People), budget.MaxPeople)
	check("deadlines", len(c.Deadlines), budget.MaxDeadlines)
	check("total_text", totalTextLength(c), budget.MaxTotalLength)
	return out
}

func totalTextLength(c *models.AssembledContext) int {
	total := 0
	for _, p := range c.Projects {
		total += len(p.Name) + len(p.Description)
	}
	for _, t := range c.Tracks {
		total += len(t.Name) + len(t.Description)
	}
	for _, it := range c.Items {
		total += len(it.Title) + len(it.Body)
	}
	for _, e := range c.Collaboration {
		total += len(e.Action) + len(e.Detail)
	}
	for _, n := range c.GraphNodes {
		total += len(n.Label)
	}
	for _, task := range c.TrackedTasks {
		total += len(task.Title)
	}
	for _, p := range c.People {
		total += len(p.DisplayName)
	}
	for _, d := range c.Deadlines {
		total += len(d.Title)
	}
	return total
}

// contentHash derives a stable hash over the selected entity ids and
// the assembly timestamp. Used for provenance, never for caching.
func contentHash(c *models.AssembledContext) string {
	var b strings.Builder
	if c.Scope.ProjectID != nil {
		b.WriteString(c.Scope.ProjectID.String())
	}
	for _, p := range c.Projects {
		b.WriteString(p.ID.String())
	}
	for _, t := range c.Tracks {
		b.WriteString(t.ID.String())
	}
	for _, it := range c.Items {
		b.WriteString(it.ID.String())
	}
	for _, e := range c.Collaboration {
		b.WriteString(e.ID.String())
	}
	for _, n := range c.GraphNodes {
		b.WriteString(n.ID.String())
	}
	for _, e := range c.GraphEdges {
		b.WriteString(e.ID.String())
	}
	for _, t := range c.TrackedTasks {
		b.WriteString(t.ID.String())
	}
	for _, p := range c.People {
		b.WriteString(p.ID.String())
	}
	for _, d := range c.Deadlines {
		b.WriteString(d.ID.String())
	}
	b.WriteString(c.AssembledAt.Format(time.RFC3339Nano))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
