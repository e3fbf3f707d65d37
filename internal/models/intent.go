package models

// Declared assistant intents. Unknown intents are legal; they receive
// the default context budget and the default feature route.
const (
	IntentPlanGeneration = "plan_generation"
	IntentItemBreakdown  = "item_breakdown"
	IntentSummary        = "summary"
	IntentRiskAnalysis   = "risk_analysis"
	IntentChat           = "chat"
	IntentTimeline       = "timeline"
	IntentChecklist      = "checklist"
)

// Intents lists every declared intent
var Intents = []string{
	IntentPlanGeneration, IntentItemBreakdown, IntentSummary,
	IntentRiskAnalysis, IntentChat, IntentTimeline, IntentChecklist,
}

// ValidIntent reports whether the value is a declared intent
func ValidIntent(value string) bool {
	for _, i := range Intents {
		if i == value {
			return true
		}
	}
	return false
}
