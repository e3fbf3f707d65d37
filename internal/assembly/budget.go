package assembly

import "github.com/planforge/planforge/internal/models"

// BudgetTable maps declared intents to context budgets. The table is
// built once at startup and never mutated; unknown intents receive the
// conservative default budget.
type BudgetTable struct {
	budgets map[string]models.ContextBudget
	def     models.ContextBudget
}

// NewBudgetTable builds a table from explicit per-intent budgets and a
// default for undeclared intents.
func NewBudgetTable(budgets map[string]models.ContextBudget, def models.ContextBudget) *BudgetTable {
	copied := make(map[string]models.ContextBudget, len(budgets))
	for intent, b := range budgets {
		copied[intent] = b
	}
	return &BudgetTable{budgets: copied, def: def}
}

// ForIntent returns the budget for an intent, falling back to the
// default for unknown or empty intents.
func (t *BudgetTable) ForIntent(intent string) models.ContextBudget {
	if b, ok := t.budgets[intent]; ok {
		return b
	}
	return t.def
}

// DefaultBudgetTable returns the production budget table.
func DefaultBudgetTable() *BudgetTable {
	def := models.ContextBudget{
		MaxProjects:            1,
		MaxTracks:              5,
		MaxItems:               10,
		MaxCollaborationEvents: 10,
		MaxGraphNodes:          15,
		MaxGraphEdges:          30,
		MaxTrackedTasks:        10,
		MaxPeople:              10,
		MaxDeadlines:           10,
		MaxFieldLength:         300,
		MaxTotalLength:         8000,
	}

	return NewBudgetTable(map[string]models.ContextBudget{
		models.IntentPlanGeneration: {
			MaxProjects: 1, MaxTracks: 10, MaxItems: 40,
			MaxCollaborationEvents: 20, MaxGraphNodes: 30, MaxGraphEdges: 60,
			MaxTrackedTasks: 30, MaxPeople: 15, MaxDeadlines: 20,
			MaxFieldLength: 500, MaxTotalLength: 24000,
		},
		models.IntentItemBreakdown: {
			MaxProjects: 1, MaxTracks: 3, MaxItems: 15,
			MaxCollaborationEvents: 5, MaxGraphNodes: 10, MaxGraphEdges: 20,
			MaxTrackedTasks: 20, MaxPeople: 8, MaxDeadlines: 10,
			MaxFieldLength: 500, MaxTotalLength: 12000,
		},
		models.IntentSummary: {
			MaxProjects: 1, MaxTracks: 10, MaxItems: 30,
			MaxCollaborationEvents: 40, MaxGraphNodes: 10, MaxGraphEdges: 20,
			MaxTrackedTasks: 20, MaxPeople: 15, MaxDeadlines: 15,
			MaxFieldLength: 250, MaxTotalLength: 16000,
		},
		models.IntentRiskAnalysis: {
			MaxProjects: 1, MaxTracks: 10, MaxItems: 30,
			MaxCollaborationEvents: 20, MaxGraphNodes: 40, MaxGraphEdges: 80,
			MaxTrackedTasks: 30, MaxPeople: 15, MaxDeadlines: 25,
			MaxFieldLength: 400, MaxTotalLength: 20000,
		},
		models.IntentChat: {
			MaxProjects: 1, MaxTracks: 5, MaxItems: 10,
			MaxCollaborationEvents: 10, MaxGraphNodes: 10, MaxGraphEdges: 20,
			MaxTrackedTasks: 10, MaxPeople: 10, MaxDeadlines: 10,
			MaxFieldLength: 300, MaxTotalLength: 10000,
		},
		models.IntentTimeline: {
			MaxProjects: 1, MaxTracks: 10, MaxItems: 40,
			MaxCollaborationEvents: 5, MaxGraphNodes: 10, MaxGraphEdges: 20,
			MaxTrackedTasks: 15, MaxPeople: 10, MaxDeadlines: 40,
			MaxFieldLength: 200, MaxTotalLength: 14000,
		},
		models.IntentChecklist: {
			MaxProjects: 1, MaxTracks: 3, MaxItems: 20,
			MaxCollaborationEvents: 5, MaxGraphNodes: 5, MaxGraphEdges: 10,
			MaxTrackedTasks: 25, MaxPeople: 8, MaxDeadlines: 15,
			MaxFieldLength: 250, MaxTotalLength: 10000,
		},
	}, def)
}
