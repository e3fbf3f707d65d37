package models

// ContextBudget caps how much data a single assembly may pull in.
// Budgets are static configuration, immutable at runtime; one instance
// exists per declared intent plus a conservative default.
type ContextBudget struct {
	MaxProjects            int `json:"max_projects"`
	MaxTracks              int `json:"max_tracks"`
	MaxItems               int `json:"max_items"`
	MaxCollaborationEvents int `json:"max_collaboration_events"`
	MaxGraphNodes          int `json:"max_graph_nodes"`
	MaxGraphEdges          int `json:"max_graph_edges"`
	MaxTrackedTasks        int `json:"max_tracked_tasks"`
	MaxPeople              int `json:"max_people"`
	MaxDeadlines           int `json:"max_deadlines"`

	// MaxFieldLength caps every free-text field; truncation appends an
	// ellipsis marker. MaxTotalLength is the aggregate text ceiling
	// checked after assembly.
	MaxFieldLength int `json:"max_field_length"`
	MaxTotalLength int `json:"max_total_length"`
}

// BudgetViolation records a soft budget overrun. Violations never abort
// assembly; the execution layer decides whether to treat them as fatal.
type BudgetViolation struct {
	Kind   string `json:"kind"`
	Limit  int    `json:"limit"`
	Actual int    `json:"actual"`
}
