package models

// TagStatus is the outcome of resolving one @reference
type TagStatus string

const (
	TagResolved   TagStatus = "resolved"
	TagAmbiguous  TagStatus = "ambiguous"
	TagUnresolved TagStatus = "unresolved"
)

// TagCandidate is one entity a tag could refer to. Priority is the
// candidate source's fixed rank (lower wins); system entities are 0.
type TagCandidate struct {
	EntityType  EntityType `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	DisplayName string     `json:"display_name"`
	Priority    int        `json:"priority"`
}

// ResolvedTag is the resolution result for one parsed @reference.
// A resolved tag carries exactly one entity reference; an ambiguous tag
// carries every candidate tied at the winning priority.
type ResolvedTag struct {
	Raw        string    `json:"raw"`
	Normalized string    `json:"normalized"`
	Status     TagStatus `json:"status"`

	EntityType  EntityType `json:"entity_type,omitempty"`
	EntityID    string     `json:"entity_id,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`

	Candidates []TagCandidate `json:"candidates,omitempty"`
}
