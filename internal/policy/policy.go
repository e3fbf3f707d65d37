package policy

import "github.com/planforge/planforge/internal/models"

// Policy is the immutable rule set governing drafts, composition and
// surface isolation. It is passed explicitly into the assembler, the
// surface guard and the draft lifecycle so tests can substitute
// alternates without process-wide state.
type Policy struct {
	// Version identifies the rule set in logs and audit rows.
	Version string

	// MaxCompositionDepth bounds item nesting on timeline views.
	MaxCompositionDepth int

	// AutoApply declares, per draft type, whether a draft may be applied
	// without explicit user confirmation. Every production entry is
	// false; the table exists so the rule is data, not code.
	AutoApply map[models.DraftType]bool

	// PartialApply declares, per draft type, whether a subset of the
	// draft's elements may be applied.
	PartialApply map[models.DraftType]bool
}

// Default returns the production policy.
func Default() Policy {
	auto := make(map[models.DraftType]bool, len(models.DraftTypes))
	for _, t := range models.DraftTypes {
		auto[t] = false
	}
	return Policy{
		Version:             "2025-08",
		MaxCompositionDepth: 3,
		AutoApply:           auto,
		PartialApply: map[models.DraftType]bool{
			models.DraftTaskList:  true,
			models.DraftTimeline:  true,
			models.DraftBreakdown: true,
		},
	}
}

// AllowsAutoApply reports whether the policy permits unconfirmed
// application of the given draft type. Unknown types default to false.
func (p Policy) AllowsAutoApply(t models.DraftType) bool {
	return p.AutoApply[t]
}

// AllowsPartialApply reports whether the draft type supports applying a
// subset of its elements.
func (p Policy) AllowsPartialApply(t models.DraftType) bool {
	return p.PartialApply[t]
}
