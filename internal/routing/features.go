package routing

import "github.com/planforge/planforge/internal/models"

// DefaultFeatureKey serves requests whose intent maps to no feature
const DefaultFeatureKey = "assistant.chat"

// intentFeatures is the static intent→feature mapping used when the
// caller does not name a feature key explicitly.
var intentFeatures = map[string]string{
	models.IntentPlanGeneration: "planning.generate",
	models.IntentItemBreakdown:  "planning.breakdown",
	models.IntentTimeline:       "planning.timeline",
	models.IntentChecklist:      "planning.checklist",
	models.IntentSummary:        "insights.summary",
	models.IntentRiskAnalysis:   "insights.risk",
	models.IntentChat:           "assistant.chat",
}

// FeatureForIntent maps an intent to its feature key
func FeatureForIntent(intent string) string {
	if key, ok := intentFeatures[intent]; ok {
		return key
	}
	return DefaultFeatureKey
}
