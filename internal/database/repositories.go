package database

import (
	"github.com/planforge/planforge/internal/assembly"
	"github.com/planforge/planforge/internal/drafts"
	"github.com/planforge/planforge/internal/routing"
	"github.com/planforge/planforge/internal/services/ai"
	"github.com/planforge/planforge/internal/tags"
)

// Compile-time checks that the repositories satisfy the collaborator
// interfaces the domain packages define.
var (
	_ assembly.Lookup    = (*LookupRepository)(nil)
	_ tags.Directory     = (*LookupRepository)(nil)
	_ routing.RouteStore = (*RouteRepository)(nil)
	_ drafts.Store       = (*DraftRepository)(nil)
	_ drafts.Applier     = (*EntityApplier)(nil)
	_ ai.AuditSink       = (*AuditRepository)(nil)
)
