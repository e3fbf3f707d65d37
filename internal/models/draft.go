package models

import (
	"time"

	"github.com/google/uuid"
)

// DraftType classifies what an AI draft proposes to create
type DraftType string

const (
	DraftRoadmapItem  DraftType = "roadmap_item"
	DraftChildItem    DraftType = "child_item"
	DraftTaskList     DraftType = "task_list"
	DraftDocument     DraftType = "document"
	DraftSummary      DraftType = "summary"
	DraftInsight      DraftType = "insight"
	DraftChecklist    DraftType = "checklist"
	DraftTimeline     DraftType = "timeline"
	DraftBreakdown    DraftType = "breakdown"
	DraftRiskAnalysis DraftType = "risk_analysis"
)

// DraftTypes lists every known draft type
var DraftTypes = []DraftType{
	DraftRoadmapItem, DraftChildItem, DraftTaskList, DraftDocument,
	DraftSummary, DraftInsight, DraftChecklist, DraftTimeline,
	DraftBreakdown, DraftRiskAnalysis,
}

// ValidDraftType reports whether the value is a known draft type
func ValidDraftType(value string) bool {
	for _, t := range DraftTypes {
		if DraftType(value) == t {
			return true
		}
	}
	return false
}

// DraftStatus is the lifecycle state of a draft
type DraftStatus string

const (
	DraftGenerated        DraftStatus = "generated"
	DraftEdited           DraftStatus = "edited"
	DraftAccepted         DraftStatus = "accepted"
	DraftDiscarded        DraftStatus = "discarded"
	DraftPartiallyApplied DraftStatus = "partially_applied"
)

// Terminal reports whether the status permits no further transitions
func (s DraftStatus) Terminal() bool {
	return s == DraftAccepted || s == DraftDiscarded
}

// ValidDraftStatus reports whether the value is a known draft status
func ValidDraftStatus(value string) bool {
	switch DraftStatus(value) {
	case DraftGenerated, DraftEdited, DraftAccepted, DraftDiscarded, DraftPartiallyApplied:
		return true
	default:
		return false
	}
}

// DraftElement is one constituent of a multi-element draft (task list,
// timeline, breakdown). Elements are addressed by index when a subset
// is applied.
type DraftElement struct {
	Index int        `json:"index"`
	Title string     `json:"title"`
	Body  string     `json:"body,omitempty"`
	DueAt *time.Time `json:"due_at,omitempty"`
}

// DraftContent is the model-proposed payload of a draft
type DraftContent struct {
	Title    string         `json:"title"`
	Body     string         `json:"body,omitempty"`
	Elements []DraftElement `json:"elements,omitempty"`
	// AppliedElements records which element indexes have been applied;
	// populated on partial application, the original elements stay intact.
	AppliedElements []int `json:"applied_elements,omitempty"`
}

// DraftProvenance records where a draft came from
type DraftProvenance struct {
	SourceEntityIDs   []string     `json:"source_entity_ids"`
	SourceEntityTypes []EntityType `json:"source_entity_types"`
	ContextHash       string       `json:"context_hash"`
	GeneratedAt       time.Time    `json:"generated_at"`
	Confidence        string       `json:"confidence,omitempty"`
	Provider          string       `json:"provider,omitempty"`
	ModelKey          string       `json:"model_key,omitempty"`
	RouteID           uuid.UUID    `json:"route_id,omitempty"`
}

// AIDraft is a non-authoritative artifact proposed by the AI. It is
// owned by the requesting user and only becomes authoritative data
// through an explicit apply.
type AIDraft struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Type       DraftType       `json:"type"`
	Status     DraftStatus     `json:"status"`
	Intent     string          `json:"intent,omitempty"`
	Content    DraftContent    `json:"content"`
	Provenance DraftProvenance `json:"provenance"`
	// Surface is the conversation surface the draft was generated on;
	// reads and regenerations from another surface are rejected.
	Surface ChatSurface  `json:"surface"`
	Scope   ContextScope `json:"scope"`
	// AppliedEntityIDs are the authoritative entities created when the
	// draft was applied.
	AppliedEntityIDs []uuid.UUID `json:"applied_entity_ids,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}
