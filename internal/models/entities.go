package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType distinguishes the kinds of entities a tag can resolve to
// and the kinds a draft can be applied against.
type EntityType string

const (
	EntitySystem  EntityType = "system"
	EntityProject EntityType = "project"
	EntityTrack   EntityType = "track"
	EntityItem    EntityType = "item"
	EntityPerson  EntityType = "person"
)

// Project is a top-level planning container
type Project struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Track is a workstream inside a project. Shared tracks are visible from
// multiple projects but keep exactly one authority project.
type Track struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Shared      bool      `json:"shared"`
	// AuthorityProjectID is set only for shared tracks; it names the one
	// project that owns the track's authoritative state.
	AuthorityProjectID *uuid.UUID `json:"authority_project_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Item is a roadmap entry on a track. Items may nest one level of
// composition via ParentID.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	TrackID     uuid.UUID  `json:"track_id"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	HasChildren bool       `json:"has_children"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Person is a collaborator visible inside one or more projects
type Person struct {
	ID          uuid.UUID   `json:"id"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	ProjectIDs  []uuid.UUID `json:"project_ids,omitempty"`
}

// CollaborationEvent is one row of the append-only collaboration log
type CollaborationEvent struct {
	ID         uuid.UUID `json:"id"`
	ProjectID  uuid.UUID `json:"project_id"`
	ActorID    uuid.UUID `json:"actor_id"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

// GraphNode is a node of a project's dependency graph
type GraphNode struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
}

// GraphEdge links two graph nodes
type GraphEdge struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	FromID    uuid.UUID `json:"from_id"`
	ToID      uuid.UUID `json:"to_id"`
	Relation  string    `json:"relation"`
}

// TrackedTask is an execution-level task attached to a roadmap item
type TrackedTask struct {
	ID         uuid.UUID  `json:"id"`
	ProjectID  uuid.UUID  `json:"project_id"`
	ItemID     *uuid.UUID `json:"item_id,omitempty"`
	Title      string     `json:"title"`
	State      string     `json:"state"`
	AssigneeID *uuid.UUID `json:"assignee_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Deadline is a dated commitment surfaced on calendars and timelines
type Deadline struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	ItemID    *uuid.UUID `json:"item_id,omitempty"`
	Title     string     `json:"title"`
	DueAt     time.Time  `json:"due_at"`
}
