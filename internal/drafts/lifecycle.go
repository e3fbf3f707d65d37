package drafts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/planforge/planforge/internal/models"
)

var (
	// ErrAlreadyFinalized is returned when a terminal draft is mutated
	ErrAlreadyFinalized = errors.New("draft already finalized")
	// ErrNoElementsSelected is returned on partial application with an
	// empty selection
	ErrNoElementsSelected = errors.New("no draft elements selected")
	// ErrPartialNotSupported is returned when element selection is used
	// on a draft type that applies only as a whole
	ErrPartialNotSupported = errors.New("draft type does not support partial application")
)

// TransitionError reports an illegal lifecycle transition
type TransitionError struct {
	From models.DraftStatus
	To   models.DraftStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal draft transition %s → %s", e.From, e.To)
}

// ProvenanceError reports structurally incomplete provenance metadata,
// with per-field detail.
type ProvenanceError struct {
	Fields map[string]string
}

func (e *ProvenanceError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, problem := range e.Fields {
		parts = append(parts, field+": "+problem)
	}
	return "invalid draft provenance: " + strings.Join(parts, "; ")
}

// transitions is the lifecycle table. Accepted and discarded rows are
// absent: terminal states permit nothing.
var transitions = map[models.DraftStatus][]models.DraftStatus{
	models.DraftGenerated: {
		models.DraftEdited, models.DraftAccepted,
		models.DraftDiscarded, models.DraftPartiallyApplied,
	},
	models.DraftEdited: {
		models.DraftEdited, models.DraftAccepted,
		models.DraftDiscarded, models.DraftPartiallyApplied,
	},
	// A partially applied draft may apply further elements, finish, or
	// be discarded; it can no longer go back to edited.
	models.DraftPartiallyApplied: {
		models.DraftPartiallyApplied, models.DraftAccepted, models.DraftDiscarded,
	},
}

// CanTransition reports whether the lifecycle permits from → to
func CanTransition(from, to models.DraftStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// checkTransition returns the precise error for an illegal transition.
func checkTransition(from, to models.DraftStatus) error {
	if from.Terminal() {
		return ErrAlreadyFinalized
	}
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// validateProvenance checks structural completeness: id/type lists of
// equal length, a context snapshot, and a generation timestamp.
func validateProvenance(p models.DraftProvenance) error {
	fields := make(map[string]string)
	if len(p.SourceEntityIDs) != len(p.SourceEntityTypes) {
		fields["source_entities"] = fmt.Sprintf("ids (%d) and types (%d) differ in length",
			len(p.SourceEntityIDs), len(p.SourceEntityTypes))
	}
	if p.ContextHash == "" {
		fields["context_hash"] = "context snapshot missing"
	}
	if p.GeneratedAt.IsZero() {
		fields["generated_at"] = "generation timestamp missing"
	}
	if len(fields) > 0 {
		return &ProvenanceError{Fields: fields}
	}
	return nil
}
