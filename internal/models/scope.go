package models

import (
	"time"

	"github.com/google/uuid"
)

// TimeWindow bounds time-sensitive data kinds (deadlines, collaboration events)
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the window (inclusive bounds)
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// ContextScope describes what a single assembly request may reference.
// Built once per request and never mutated afterwards; use the With*
// helpers to derive variants.
type ContextScope struct {
	ProjectID            *uuid.UUID  `json:"project_id,omitempty"`
	TrackIDs             []uuid.UUID `json:"track_ids,omitempty"`
	ItemIDs              []uuid.UUID `json:"item_ids,omitempty"`
	IncludeCollaboration bool        `json:"include_collaboration"`
	IncludeGraph         bool        `json:"include_graph"`
	IncludeTaskTracking  bool        `json:"include_task_tracking"`
	IncludePeople        bool        `json:"include_people"`
	IncludeDeadlines     bool        `json:"include_deadlines"`
	Window               *TimeWindow `json:"window,omitempty"`
}

// WithTrackIDs returns a copy of the scope with additional track ids appended
func (s ContextScope) WithTrackIDs(ids ...uuid.UUID) ContextScope {
	out := s
	out.TrackIDs = append(append([]uuid.UUID{}, s.TrackIDs...), ids...)
	return out
}

// WithItemIDs returns a copy of the scope with additional item ids appended
func (s ContextScope) WithItemIDs(ids ...uuid.UUID) ContextScope {
	out := s
	out.ItemIDs = append(append([]uuid.UUID{}, s.ItemIDs...), ids...)
	return out
}
