package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planforge/planforge/internal/assembly"
	"github.com/planforge/planforge/internal/drafts"
	"github.com/planforge/planforge/internal/models"
	"github.com/planforge/planforge/internal/routing"
	"github.com/planforge/planforge/internal/tags"
)

// AuditSink records one append-only row per AI call. Writes are
// best-effort: failures are logged and never surfaced to the caller.
type AuditSink interface {
	Record(ctx context.Context, interaction models.AIInteraction) error
}

// ProviderConfigSource supplies adapter configuration per provider name.
type ProviderConfigSource func(provider string) map[string]string

// BudgetExceededError is returned only in strict-budget mode, when the
// assembled context overran its budget.
type BudgetExceededError struct {
	Violations []models.BudgetViolation
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("context budget exceeded (%d violations)", len(e.Violations))
}

// GenerateInput is one generation request after transport-level
// validation.
type GenerateInput struct {
	UserID  uuid.UUID
	Surface models.ChatSurface
	Scope   models.ContextScope
	Intent  string
	// Text is the raw user input; @references are parsed out of it.
	Text string
	// DraftType overrides the intent's default draft type when set.
	DraftType models.DraftType
	// StrictBudget turns budget violations from advisory into fatal.
	StrictBudget bool
}

// GenerateResult carries the stored draft plus resolution details the
// transport layer surfaces to the client.
type GenerateResult struct {
	Draft       *models.AIDraft
	Tags        []models.ResolvedTag
	TagsDropped int
	Violations  []models.BudgetViolation
	Route       *models.ResolvedRoute
}

// ChatResult is the outcome of one chat turn. Chat never produces a
// draft; the reply is ephemeral.
type ChatResult struct {
	Message     string
	Tags        []models.ResolvedTag
	TagsDropped int
	ContextHash string
	Route       *models.ResolvedRoute
}

// Orchestrator runs the full generation pipeline: tag parsing and
// resolution, context assembly, route resolution, provider invocation,
// draft creation, audit. It holds no per-request state.
type Orchestrator struct {
	tagResolver    *tags.Resolver
	assembler      *assembly.Assembler
	router         *routing.Resolver
	registry       *Registry
	providerConfig ProviderConfigSource
	draftService   *drafts.Service
	audit          AuditSink
	logger         *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	tagResolver *tags.Resolver,
	assembler *assembly.Assembler,
	router *routing.Resolver,
	registry *Registry,
	providerConfig ProviderConfigSource,
	draftService *drafts.Service,
	audit AuditSink,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		tagResolver:    tagResolver,
		assembler:      assembler,
		router:         router,
		registry:       registry,
		providerConfig: providerConfig,
		draftService:   draftService,
		audit:          audit,
		logger:         logger,
	}
}

// intentDraftTypes maps each generation intent to the draft type it
// produces by default.
var intentDraftTypes = map[string]models.DraftType{
	models.IntentPlanGeneration: models.DraftRoadmapItem,
	models.IntentItemBreakdown:  models.DraftBreakdown,
	models.IntentTimeline:       models.DraftTimeline,
	models.IntentChecklist:      models.DraftChecklist,
	models.IntentSummary:        models.DraftSummary,
	models.IntentRiskAnalysis:   models.DraftRiskAnalysis,
}

// DraftTypeForIntent returns the draft type an intent produces.
func DraftTypeForIntent(intent string) models.DraftType {
	if t, ok := intentDraftTypes[intent]; ok {
		return t
	}
	return models.DraftDocument
}

// pipelineOutput is the shared result of the steps common to Generate
// and Chat.
type pipelineOutput struct {
	parse     tags.ParseResult
	resolved  []models.ResolvedTag
	assembled *models.AssembledContext
	route     *models.ResolvedRoute
	response  *GenerateResponse
}

func (o *Orchestrator) runPipeline(ctx context.Context, in GenerateInput) (*pipelineOutput, error) {
	parse := tags.Parse(in.Text)
	if parse.Truncated() {
		o.logger.Info("tags_truncated",
			zap.String("user_id", in.UserID.String()),
			zap.Int("dropped", parse.Dropped),
		)
	}

	rc := tags.ResolutionContext{
		UserID:              in.UserID,
		ProjectID:           in.Scope.ProjectID,
		AllowSystemEntities: true,
		AllowSharedTracks:   in.Surface.Type != models.SurfacePersonal,
	}
	resolved, err := o.tagResolver.ResolveAll(ctx, parse.Unique(), rc)
	if err != nil {
		return nil, fmt.Errorf("tag resolution failed: %w", err)
	}

	scope := augmentScope(in.Scope, resolved)

	assembled, err := o.assembler.Assemble(ctx, in.UserID, in.Surface, scope, in.Intent)
	if err != nil {
		return nil, err
	}
	if in.StrictBudget && len(assembled.Violations) > 0 {
		return nil, &BudgetExceededError{Violations: assembled.Violations}
	}

	route, err := o.router.Resolve(ctx, routing.Request{
		Intent:      in.Intent,
		SurfaceType: &in.Surface.Type,
		ProjectID:   scope.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("route resolution failed: %w", err)
	}

	adapter, err := o.registry.ForRoute(route, o.providerConfig(route.Provider))
	if err != nil {
		return nil, err
	}

	response, err := adapter.Generate(ctx, GenerateRequest{
		ModelKey:     route.ModelKey,
		Intent:       in.Intent,
		Messages:     BuildMessages(in.Intent, assembled, resolved, parse.Stripped),
		JSONResponse: WantsJSON(in.Intent),
	})
	if err != nil {
		return nil, err
	}

	o.recordAudit(ctx, in, route, response)

	return &pipelineOutput{
		parse:     parse,
		resolved:  resolved,
		assembled: assembled,
		route:     route,
		response:  response,
	}, nil
}

// Generate runs the pipeline and stores the model output as a draft.
// The draft never touches authoritative data; applying it is a separate
// user-confirmed operation.
func (o *Orchestrator) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	out, err := o.runPipeline(ctx, in)
	if err != nil {
		return nil, err
	}

	content, err := parseDraftContent(out.response.Content, in.Intent)
	if err != nil {
		return nil, err
	}

	draftType := in.DraftType
	if draftType == "" {
		draftType = DraftTypeForIntent(in.Intent)
	}

	draft := &models.AIDraft{
		ID:      uuid.New(),
		UserID:  in.UserID,
		Type:    draftType,
		Intent:  in.Intent,
		Content: content,
		Surface: in.Surface,
		Scope:   out.assembled.Scope,
		Provenance: models.DraftProvenance{
			SourceEntityIDs:   sourceEntityIDs(out.resolved),
			SourceEntityTypes: sourceEntityTypes(out.resolved),
			ContextHash:       out.assembled.Hash,
			GeneratedAt:       out.assembled.AssembledAt,
			Provider:          out.route.Provider,
			ModelKey:          out.route.ModelKey,
			RouteID:           out.route.RouteID,
		},
	}

	if err := o.draftService.CreateGenerated(ctx, draft); err != nil {
		return nil, err
	}

	o.logger.Info("draft_generated",
		zap.String("draft_id", draft.ID.String()),
		zap.String("draft_type", string(draft.Type)),
		zap.String("intent", in.Intent),
		zap.String("provider", out.route.Provider),
		zap.String("model", out.route.ModelKey),
		zap.Int("context_entities", out.assembled.EntityCount()),
		zap.Int("budget_violations", len(out.assembled.Violations)),
	)

	return &GenerateResult{
		Draft:       draft,
		Tags:        out.resolved,
		TagsDropped: out.parse.Dropped,
		Violations:  out.assembled.Violations,
		Route:       out.route,
	}, nil
}

// Chat runs the pipeline for a conversational turn. No draft is stored.
func (o *Orchestrator) Chat(ctx context.Context, in GenerateInput) (*ChatResult, error) {
	in.Intent = models.IntentChat
	out, err := o.runPipeline(ctx, in)
	if err != nil {
		return nil, err
	}
	return &ChatResult{
		Message:     out.response.Content,
		Tags:        out.resolved,
		TagsDropped: out.parse.Dropped,
		ContextHash: out.assembled.Hash,
		Route:       out.route,
	}, nil
}

func (o *Orchestrator) recordAudit(ctx context.Context, in GenerateInput, route *models.ResolvedRoute, resp *GenerateResponse) {
	if o.audit == nil {
		return
	}
	interaction := models.AIInteraction{
		ID:               uuid.New(),
		UserID:           in.UserID,
		ProjectID:        in.Scope.ProjectID,
		Intent:           in.Intent,
		FeatureKey:       routing.FeatureForIntent(in.Intent),
		Provider:         route.Provider,
		ModelKey:         route.ModelKey,
		RouteID:          route.RouteID,
		PromptTokens:     resp.Usage.Prompt,
		CompletionTokens: resp.Usage.Completion,
		LatencyMS:        resp.LatencyMs,
		CreatedAt:        time.Now().UTC(),
	}
	if err := o.audit.Record(ctx, interaction); err != nil {
		o.logger.Warn("ai_audit_write_failed",
			zap.String("user_id", in.UserID.String()),
			zap.String("intent", in.Intent),
			zap.Error(err),
		)
	}
}

// augmentScope widens the scope with the entities the user referenced
// by tag, so assembly includes what they explicitly named.
func augmentScope(scope models.ContextScope, resolved []models.ResolvedTag) models.ContextScope {
	for _, tag := range resolved {
		if tag.Status != models.TagResolved {
			continue
		}
		id, err := uuid.Parse(tag.EntityID)
		if err != nil {
			continue // system entities carry names, not ids
		}
		switch tag.EntityType {
		case models.EntityTrack:
			scope = scope.WithTrackIDs(id)
		case models.EntityItem:
			scope = scope.WithItemIDs(id)
		}
	}
	return scope
}

func sourceEntityIDs(resolved []models.ResolvedTag) []string {
	ids := make([]string, 0, len(resolved))
	for _, tag := range resolved {
		if tag.Status == models.TagResolved {
			ids = append(ids, tag.EntityID)
		}
	}
	return ids
}

func sourceEntityTypes(resolved []models.ResolvedTag) []models.EntityType {
	types := make([]models.EntityType, 0, len(resolved))
	for _, tag := range resolved {
		if tag.Status == models.TagResolved {
			types = append(types, tag.EntityType)
		}
	}
	return types
}

// parseDraftContent turns raw model output into draft content. JSON
// intents must produce a single object; plain-text intents become the
// draft body as-is.
func parseDraftContent(raw string, intent string) (models.DraftContent, error) {
	if !WantsJSON(intent) {
		return models.DraftContent{Body: raw}, nil
	}

	var parsed struct {
		Title    string `json:"title"`
		Body     string `json:"body"`
		Elements []struct {
			Title string     `json:"title"`
			Body  string     `json:"body"`
			DueAt *time.Time `json:"due_at"`
		} `json:"elements"`
	}

	candidate := raw
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		// Some models wrap the object in prose; salvage the outermost
		// braces before giving up.
		start := bytes.IndexByte([]byte(raw), '{')
		end := bytes.LastIndexByte([]byte(raw), '}')
		if start == -1 || end <= start {
			return models.DraftContent{}, fmt.Errorf("failed to parse draft content: %w", err)
		}
		candidate = raw[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			return models.DraftContent{}, fmt.Errorf("failed to parse draft content: %w", err)
		}
	}

	content := models.DraftContent{Title: parsed.Title, Body: parsed.Body}
	for i, el := range parsed.Elements {
		content.Elements = append(content.Elements, models.DraftElement{
			Index: i,
			Title: el.Title,
			Body:  el.Body,
			DueAt: el.DueAt,
		})
	}
	return content, nil
}
