package policy

import (
	"errors"
	"fmt"
)

// Invariant names. Each maps to one assertion in this package.
const (
	InvariantAINoDirectWrite         = "ai_no_direct_write"
	InvariantDraftConfirmation       = "draft_requires_confirmation"
	InvariantCrossProjectPermission  = "cross_project_permission"
	InvariantTimelineComposition     = "timeline_composition"
	InvariantSharedTrackAuthority    = "shared_track_single_authority"
	InvariantCollaborationAppendOnly = "collaboration_append_only"
	InvariantDraftOwnership          = "draft_ownership"
	InvariantSurfaceExclusivity      = "surface_exclusivity"
	InvariantSurfaceScope            = "surface_scope"
)

// Violation is a fatal policy error. It carries the invariant name and a
// structured context blob for internal logging; the user-facing message
// stays short and non-technical.
type Violation struct {
	Invariant string
	Message   string
	Context   map[string]any
}

func (v *Violation) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", v.Invariant, v.Message)
}

// UserMessage returns the short message safe to show an end user.
func (v *Violation) UserMessage() string {
	switch v.Invariant {
	case InvariantSurfaceScope, InvariantSurfaceExclusivity:
		return "This conversation cannot access that data."
	case InvariantDraftOwnership:
		return "You do not have access to this draft."
	default:
		return "This action is not permitted."
	}
}

func violate(invariant, message string, ctx map[string]any) *Violation {
	return &Violation{Invariant: invariant, Message: message, Context: ctx}
}

// IsViolation reports whether err wraps a policy violation, optionally
// matching a specific invariant name ("" matches any).
func IsViolation(err error, invariant string) bool {
	var v *Violation
	if !errors.As(err, &v) {
		return false
	}
	return invariant == "" || v.Invariant == invariant
}

// IsSurfaceScopeViolation reports whether err is a surface-isolation
// failure, the one violation class raised by the surface guard.
func IsSurfaceScopeViolation(err error) bool {
	return IsViolation(err, InvariantSurfaceScope)
}
