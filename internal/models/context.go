package models

import "time"

// AssembledContext is the bounded, permission-checked snapshot handed to
// the execution layer. Entity collections never exceed the applied
// budget's maxima; slicing happens before population, not after.
type AssembledContext struct {
	Scope ContextScope `json:"scope"`

	Projects      []Project            `json:"projects,omitempty"`
	Tracks        []Track              `json:"tracks,omitempty"`
	Items         []Item               `json:"items,omitempty"`
	Collaboration []CollaborationEvent `json:"collaboration,omitempty"`
	GraphNodes    []GraphNode          `json:"graph_nodes,omitempty"`
	GraphEdges    []GraphEdge          `json:"graph_edges,omitempty"`
	TrackedTasks  []TrackedTask        `json:"tracked_tasks,omitempty"`
	People        []Person             `json:"people,omitempty"`
	Deadlines     []Deadline           `json:"deadlines,omitempty"`

	AssembledAt time.Time         `json:"assembled_at"`
	Budget      ContextBudget     `json:"budget"`
	Violations  []BudgetViolation `json:"violations,omitempty"`

	// Hash is a stable content hash over the selected entity ids and the
	// assembly timestamp, recorded for provenance and reproducibility.
	Hash string `json:"hash"`
}

// EntityCount returns the total number of entities in the snapshot
func (c *AssembledContext) EntityCount() int {
	return len(c.Projects) + len(c.Tracks) + len(c.Items) +
		len(c.Collaboration) + len(c.GraphNodes) + len(c.GraphEdges) +
		len(c.TrackedTasks) + len(c.People) + len(c.Deadlines)
}
