package assembly

import (
	"github.com/google/uuid"

	"github.com/planforge/planforge/internal/models"
	"github.com/planforge/planforge/internal/policy"
)

// Guard enforces conversation-surface isolation on a context scope.
// Guard failures are security boundaries: always fatal, never recorded
// as soft violations the way budget overruns are.
type Guard struct {
	enforcer *policy.Enforcer
}

// NewGuard creates a guard backed by the invariant enforcer.
func NewGuard(enforcer *policy.Enforcer) *Guard {
	return &Guard{enforcer: enforcer}
}

// Enforcer returns the invariant enforcer the guard checks against.
func (g *Guard) Enforcer() *policy.Enforcer { return g.enforcer }

// Check validates that the scope stays inside the surface's isolation
// boundary. It returns a *policy.Violation with the surface_scope
// invariant on any breach.
func (g *Guard) Check(surface models.ChatSurface, scope models.ContextScope) error {
	if err := g.enforcer.AssertConversationSurface(surface); err != nil {
		return err
	}

	switch surface.Type {
	case models.SurfaceProject:
		// A project surface may only reference its own project. A foreign
		// project id is rejected outright, never silently dropped.
		if scope.ProjectID != nil && *scope.ProjectID != *surface.ProjectID {
			return &policy.Violation{
				Invariant: policy.InvariantSurfaceScope,
				Message:   "project surface cannot reference another project",
				Context: map[string]any{
					"surface_project": surface.ProjectID.String(),
					"scope_project":   scope.ProjectID.String(),
				},
			}
		}

	case models.SurfacePersonal:
		if scope.ProjectID != nil {
			return &policy.Violation{
				Invariant: policy.InvariantSurfaceScope,
				Message:   "personal surface cannot reference a project",
				Context:   map[string]any{"scope_project": scope.ProjectID.String()},
			}
		}
		if scope.IncludeCollaboration {
			return &policy.Violation{
				Invariant: policy.InvariantSurfaceScope,
				Message:   "personal surface cannot request collaboration data",
				Context:   map[string]any{},
			}
		}

	case models.SurfaceShared:
		// Shared surfaces never read project-authoritative data directly.
		if scope.ProjectID != nil {
			return &policy.Violation{
				Invariant: policy.InvariantSurfaceScope,
				Message:   "shared surface cannot reference project-authoritative data",
				Context:   map[string]any{"scope_project": scope.ProjectID.String()},
			}
		}
		if scope.IncludeTaskTracking {
			return &policy.Violation{
				Invariant: policy.InvariantSurfaceScope,
				Message:   "shared surface cannot request task-tracking data",
				Context:   map[string]any{},
			}
		}
	}

	return nil
}

// CheckFetched validates the rows id-addressed lookups actually
// returned against the surface. The lookup queries scope by user
// membership, which still admits rows from the user's other projects;
// those must never cross the isolation boundary into a context.
func (g *Guard) CheckFetched(surface models.ChatSurface, c *models.AssembledContext) error {
	switch surface.Type {
	case models.SurfaceProject:
		for _, track := range c.Tracks {
			if track.Shared {
				// Shared tracks are readable across projects but keep
				// exactly one authority project.
				if err := g.enforcer.AssertSharedTrackAuthority(track.ID, authorityProjects(track)); err != nil {
					return err
				}
				continue
			}
			if track.ProjectID != *surface.ProjectID {
				return g.enforcer.AssertCrossProjectAccess(*surface.ProjectID, track.ProjectID, false)
			}
		}
		for _, item := range c.Items {
			if item.ProjectID != *surface.ProjectID {
				return g.enforcer.AssertCrossProjectAccess(*surface.ProjectID, item.ProjectID, false)
			}
		}

	case models.SurfaceShared:
		sharedTracks := make(map[uuid.UUID]bool, len(c.Tracks))
		for _, track := range c.Tracks {
			if !track.Shared {
				return &policy.Violation{
					Invariant: policy.InvariantSurfaceScope,
					Message:   "shared surface cannot read project-authoritative tracks",
					Context:   map[string]any{"track_id": track.ID.String()},
				}
			}
			if err := g.enforcer.AssertSharedTrackAuthority(track.ID, authorityProjects(track)); err != nil {
				return err
			}
			sharedTracks[track.ID] = true
		}
		for _, item := range c.Items {
			if !sharedTracks[item.TrackID] {
				return &policy.Violation{
					Invariant: policy.InvariantSurfaceScope,
					Message:   "shared surface may only read items on its shared tracks",
					Context:   map[string]any{"item_id": item.ID.String()},
				}
			}
		}

	case models.SurfacePersonal:
		if len(c.Tracks) > 0 || len(c.Items) > 0 {
			return &policy.Violation{
				Invariant: policy.InvariantSurfaceScope,
				Message:   "personal surface cannot read project data",
				Context:   map[string]any{},
			}
		}
	}

	return nil
}

func authorityProjects(track models.Track) []uuid.UUID {
	if track.AuthorityProjectID == nil {
		return nil
	}
	return []uuid.UUID{*track.AuthorityProjectID}
}
