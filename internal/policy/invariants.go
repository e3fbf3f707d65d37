package policy

import (
	"github.com/google/uuid"
	"github.com/planforge/planforge/internal/models"
)

// Enforcer exposes the named invariant assertions. All assertions are
// independent and side-effect free; each returns nil or a *Violation.
type Enforcer struct {
	policy Policy
}

// NewEnforcer creates an enforcer bound to a policy.
func NewEnforcer(p Policy) *Enforcer {
	return &Enforcer{policy: p}
}

// Policy returns the policy the enforcer was built with.
func (e *Enforcer) Policy() Policy { return e.policy }

// AssertNoDirectWrite rejects any attempt by the generation pipeline to
// write authoritative data. AI output may only ever become a draft.
func (e *Enforcer) AssertNoDirectWrite(target models.EntityType, operation string) error {
	return violate(InvariantAINoDirectWrite,
		"AI output may not write authoritative data directly",
		map[string]any{"target": string(target), "operation": operation})
}

// AssertDraftConfirmation rejects unconfirmed application unless the
// policy table explicitly allows it for the draft type.
func (e *Enforcer) AssertDraftConfirmation(t models.DraftType, userConfirmed bool) error {
	if userConfirmed {
		return nil
	}
	if e.policy.AllowsAutoApply(t) {
		return nil
	}
	return violate(InvariantDraftConfirmation,
		"draft application requires explicit user confirmation",
		map[string]any{"draft_type": string(t)})
}

// AssertCrossProjectAccess requires that any access reaching outside the
// requesting project carried an explicit permission check.
func (e *Enforcer) AssertCrossProjectAccess(from, to uuid.UUID, permissionChecked bool) error {
	if from == to {
		return nil
	}
	if permissionChecked {
		return nil
	}
	return violate(InvariantCrossProjectPermission,
		"cross-project access without permission check",
		map[string]any{"from_project": from.String(), "to_project": to.String()})
}

// AssertTimelineComposition rejects an item that is both a child and a
// parent appearing on a timeline view.
func (e *Enforcer) AssertTimelineComposition(item models.Item) error {
	if item.ParentID != nil && item.HasChildren {
		return violate(InvariantTimelineComposition,
			"item with both a parent and children may not appear on a timeline",
			map[string]any{"item_id": item.ID.String()})
	}
	return nil
}

// AssertCompositionDepth bounds item nesting depth.
func (e *Enforcer) AssertCompositionDepth(depth int) error {
	if depth <= e.policy.MaxCompositionDepth {
		return nil
	}
	return violate(InvariantTimelineComposition,
		"item composition exceeds maximum depth",
		map[string]any{"depth": depth, "max_depth": e.policy.MaxCompositionDepth})
}

// AssertSharedTrackAuthority requires exactly one primary authority
// project on a shared track.
func (e *Enforcer) AssertSharedTrackAuthority(trackID uuid.UUID, authorityProjects []uuid.UUID) error {
	if len(authorityProjects) == 1 {
		return nil
	}
	ids := make([]string, 0, len(authorityProjects))
	for _, id := range authorityProjects {
		ids = append(ids, id.String())
	}
	return violate(InvariantSharedTrackAuthority,
		"shared track must have exactly one authority project",
		map[string]any{"track_id": trackID.String(), "authority_projects": ids})
}

// AssertCollaborationAppendOnly rejects mutation of collaboration log
// rows; only appends are legal.
func (e *Enforcer) AssertCollaborationAppendOnly(operation string) error {
	switch operation {
	case "append", "create":
		return nil
	}
	return violate(InvariantCollaborationAppendOnly,
		"collaboration logs are append-only",
		map[string]any{"operation": operation})
}

// AssertDraftOwnership requires the acting user to own the draft.
func (e *Enforcer) AssertDraftOwnership(ownerID, actorID uuid.UUID) error {
	if ownerID == actorID {
		return nil
	}
	return violate(InvariantDraftOwnership,
		"only the owning user may mutate a draft",
		map[string]any{"owner_id": ownerID.String(), "actor_id": actorID.String()})
}

// AssertConversationSurface requires every conversation to carry exactly
// one valid surface.
func (e *Enforcer) AssertConversationSurface(surface models.ChatSurface) error {
	if err := surface.Validate(); err != nil {
		return violate(InvariantSurfaceExclusivity, err.Error(),
			map[string]any{"surface_type": string(surface.Type)})
	}
	return nil
}

// AssertSurfaceUnchanged rejects switching surface mid-conversation.
func (e *Enforcer) AssertSurfaceUnchanged(current, next models.ChatSurface) error {
	if current.Type != next.Type {
		return violate(InvariantSurfaceExclusivity,
			"conversation surface cannot change mid-conversation",
			map[string]any{"current": string(current.Type), "next": string(next.Type)})
	}
	if current.Type == models.SurfaceProject {
		if current.ProjectID == nil || next.ProjectID == nil || *current.ProjectID != *next.ProjectID {
			return violate(InvariantSurfaceExclusivity,
				"conversation cannot move between projects",
				map[string]any{})
		}
	}
	return nil
}

// AssertNoCrossSurfaceRead rejects reading one conversation's data from
// another surface.
func (e *Enforcer) AssertNoCrossSurfaceRead(owner, reader models.ChatSurface) error {
	if err := e.AssertSurfaceUnchanged(owner, reader); err != nil {
		return violate(InvariantSurfaceExclusivity,
			"cross-surface reads are not permitted",
			map[string]any{"owner": string(owner.Type), "reader": string(reader.Type)})
	}
	return nil
}
