package tags

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/planforge/planforge/internal/models"
)

// Candidate source priorities; lower wins.
const (
	prioritySystem      = 0
	priorityTrack       = 1
	priorityItem        = 2
	priorityPerson      = 3
	prioritySharedTrack = 4
	priorityGlobal      = 5
)

// systemEntities are the built-in names resolvable on any surface
var systemEntities = []string{"calendar", "tasks", "roadmap"}

// Directory is the permission-scoped lookup collaborator. Every method
// returns only entities the requesting user may access.
type Directory interface {
	ProjectTracks(ctx context.Context, userID, projectID uuid.UUID) ([]models.Track, error)
	ProjectItems(ctx context.Context, userID, projectID uuid.UUID) ([]models.Item, error)
	ProjectPeople(ctx context.Context, userID, projectID uuid.UUID) ([]models.Person, error)
	SharedTracks(ctx context.Context, userID uuid.UUID) ([]models.Track, error)
	GlobalPeople(ctx context.Context, userID uuid.UUID) ([]models.Person, error)
}

// ResolutionContext carries who is asking and what sources they may use
type ResolutionContext struct {
	UserID    uuid.UUID
	ProjectID *uuid.UUID
	// AllowSystemEntities permits resolution to built-in names
	AllowSystemEntities bool
	// AllowSharedTracks permits resolution into shared tracks
	AllowSharedTracks bool
}

// Resolver maps normalized tags to entities through the directory
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver backed by a directory
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve resolves one normalized tag. Each tag is resolved with no
// cross-tag state so calls are deterministic and parallelizable.
func (r *Resolver) Resolve(ctx context.Context, token Token, rc ResolutionContext) (models.ResolvedTag, error) {
	tag := models.ResolvedTag{Raw: token.Raw, Normalized: token.Normalized, Status: models.TagUnresolved}

	// System entities short-circuit before any lookup.
	if rc.AllowSystemEntities {
		for _, name := range systemEntities {
			if token.Normalized == name {
				tag.Status = models.TagResolved
				tag.EntityType = models.EntitySystem
				tag.EntityID = name
				tag.DisplayName = name
				return tag, nil
			}
		}
	}

	// Candidate sources in priority order. The first source yielding any
	// match wins: ties can only occur within a single source, so lower
	// priority sources never need to be consulted after a hit.
	for _, source := range r.sources(rc) {
		candidates, err := source(ctx)
		if err != nil {
			return tag, fmt.Errorf("tag candidate lookup failed: %w", err)
		}
		matched := matchCandidates(candidates, token.Normalized)
		if len(matched) == 0 {
			continue
		}
		if len(matched) == 1 {
			tag.Status = models.TagResolved
			tag.EntityType = matched[0].EntityType
			tag.EntityID = matched[0].EntityID
			tag.DisplayName = matched[0].DisplayName
		} else {
			tag.Status = models.TagAmbiguous
			tag.Candidates = matched
		}
		return tag, nil
	}

	return tag, nil
}

// ResolveAll resolves every token independently and in parallel,
// preserving input order in the result.
func (r *Resolver) ResolveAll(ctx context.Context, tokens []Token, rc ResolutionContext) ([]models.ResolvedTag, error) {
	resolved := make([]models.ResolvedTag, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		g.Go(func() error {
			tag, err := r.Resolve(gctx, token, rc)
			if err != nil {
				return err
			}
			resolved[i] = tag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

type candidateFetch func(ctx context.Context) ([]models.TagCandidate, error)

func (r *Resolver) sources(rc ResolutionContext) []candidateFetch {
	var out []candidateFetch
	if rc.ProjectID != nil {
		projectID := *rc.ProjectID
		out = append(out,
			func(ctx context.Context) ([]models.TagCandidate, error) {
				tracks, err := r.dir.ProjectTracks(ctx, rc.UserID, projectID)
				return trackCandidates(tracks, priorityTrack), err
			},
			func(ctx context.Context) ([]models.TagCandidate, error) {
				items, err := r.dir.ProjectItems(ctx, rc.UserID, projectID)
				return itemCandidates(items), err
			},
			func(ctx context.Context) ([]models.TagCandidate, error) {
				people, err := r.dir.ProjectPeople(ctx, rc.UserID, projectID)
				return personCandidates(people, priorityPerson), err
			},
		)
	}
	if rc.AllowSharedTracks {
		out = append(out, func(ctx context.Context) ([]models.TagCandidate, error) {
			tracks, err := r.dir.SharedTracks(ctx, rc.UserID)
			return trackCandidates(tracks, prioritySharedTrack), err
		})
	}
	if rc.ProjectID == nil {
		out = append(out, func(ctx context.Context) ([]models.TagCandidate, error) {
			people, err := r.dir.GlobalPeople(ctx, rc.UserID)
			return personCandidates(people, priorityGlobal), err
		})
	}
	return out
}

// matchCandidates keeps candidates whose normalized display name equals
// the normalized tag. Matches are sorted by id for a stable result.
func matchCandidates(candidates []models.TagCandidate, normalized string) []models.TagCandidate {
	var matched []models.TagCandidate
	for _, c := range candidates {
		if Normalize(c.DisplayName) == normalized {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].EntityID < matched[j].EntityID })
	return matched
}

func trackCandidates(tracks []models.Track, priority int) []models.TagCandidate {
	out := make([]models.TagCandidate, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, models.TagCandidate{
			EntityType:  models.EntityTrack,
			EntityID:    t.ID.String(),
			DisplayName: t.Name,
			Priority:    priority,
		})
	}
	return out
}

func itemCandidates(items []models.Item) []models.TagCandidate {
	out := make([]models.TagCandidate, 0, len(items))
	for _, it := range items {
		out = append(out, models.TagCandidate{
			EntityType:  models.EntityItem,
			EntityID:    it.ID.String(),
			DisplayName: it.Title,
			Priority:    priorityItem,
		})
	}
	return out
}

func personCandidates(people []models.Person, priority int) []models.TagCandidate {
	out := make([]models.TagCandidate, 0, len(people))
	for _, p := range people {
		out = append(out, models.TagCandidate{
			EntityType:  models.EntityPerson,
			EntityID:    p.ID.String(),
			DisplayName: p.DisplayName,
			Priority:    priority,
		})
	}
	return out
}
