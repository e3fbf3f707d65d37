package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/planforge/planforge/internal/drafts"
	"github.com/planforge/planforge/internal/middleware"
	"github.com/planforge/planforge/internal/models"
	"github.com/planforge/planforge/internal/policy"
	"github.com/planforge/planforge/internal/queue"
)

// DraftHandler handles draft lifecycle requests
type DraftHandler struct {
	draftService *drafts.Service
	jobQueue     queue.JobQueue
}

// NewDraftHandler creates a new draft handler
func NewDraftHandler(draftService *drafts.Service, jobQueue queue.JobQueue) *DraftHandler {
	return &DraftHandler{draftService: draftService, jobQueue: jobQueue}
}

// RegisterRoutes registers draft routes on the given router
// The router should already have the /drafts prefix
func (h *DraftHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListDrafts).Methods("GET")
	r.HandleFunc("/{id}", h.GetDraft).Methods("GET")
	r.HandleFunc("/{id}", h.EditDraft).Methods("PATCH")
	r.HandleFunc("/{id}/apply", h.ApplyDraft).Methods("POST")
	r.HandleFunc("/{id}/discard", h.DiscardDraft).Methods("POST")
	r.HandleFunc("/{id}/regenerate", h.RegenerateDraft).Methods("POST")
}

const (
	// DefaultDraftPageSize is the default page size for listing drafts
	DefaultDraftPageSize = 20
	// MaxDraftPageSize is the maximum page size for listing drafts
	MaxDraftPageSize = 100
)

// EditDraftRequest represents a draft edit request
type EditDraftRequest struct {
	Content models.DraftContent `json:"content"`
}

// ApplyDraftRequest represents a draft apply request
type ApplyDraftRequest struct {
	// Elements selects element indexes for partial application; empty
	// applies the whole draft
	Elements []int `json:"elements,omitempty"`
	// Confirmed must be true; drafts are never applied implicitly
	Confirmed bool `json:"confirmed"`
}

// RegenerateDraftRequest represents a draft regeneration request
type RegenerateDraftRequest struct {
	Intent       string              `json:"intent" validate:"required,intent"`
	Text         string              `json:"text" validate:"required,min=1,max=10000"`
	Surface      models.ChatSurface  `json:"surface"`
	Scope        models.ContextScope `json:"scope"`
	StrictBudget bool                `json:"strict_budget,omitempty"`
}

// ListDraftsResponse represents the paginated response for listing drafts
type ListDraftsResponse struct {
	Drafts     []*models.AIDraft `json:"drafts"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	Total      int               `json:"total"`
	TotalPages int               `json:"total_pages"`
}

// ListDrafts lists drafts for the authenticated user with pagination
func (h *DraftHandler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	pageSize := DefaultDraftPageSize
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 {
			if parsed > MaxDraftPageSize {
				pageSize = MaxDraftPageSize
			} else {
				pageSize = parsed
			}
		}
	}

	draftList, total, err := h.draftService.List(r.Context(), user.ID, page, pageSize)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve drafts")
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	respondJSON(w, http.StatusOK, ListDraftsResponse{
		Drafts:     draftList,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	})
}

// GetDraft retrieves a draft by ID
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := draftID(w, r)
	if !ok {
		return
	}

	draft, err := h.draftService.Get(r.Context(), user.ID, id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Draft not found")
		return
	}

	respondJSON(w, http.StatusOK, draft)
}

// EditDraft replaces a draft's content
func (h *DraftHandler) EditDraft(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := draftID(w, r)
	if !ok {
		return
	}

	var req EditDraftRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	draft, err := h.draftService.Edit(r.Context(), user.ID, id, req.Content)
	if err != nil {
		respondDraftError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, draft)
}

// ApplyDraft turns a draft into authoritative entities
func (h *DraftHandler) ApplyDraft(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := draftID(w, r)
	if !ok {
		return
	}

	var req ApplyDraftRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	draft, err := h.draftService.Apply(r.Context(), user.ID, id, drafts.ApplyOptions{
		Elements:  req.Elements,
		Confirmed: req.Confirmed,
	})
	if err != nil {
		respondDraftError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, draft)
}

// DiscardDraft discards a draft
func (h *DraftHandler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := draftID(w, r)
	if !ok {
		return
	}

	draft, err := h.draftService.Discard(r.Context(), user.ID, id)
	if err != nil {
		respondDraftError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, draft)
}

// RegenerateDraft enqueues a regeneration job for a non-terminal draft
func (h *DraftHandler) RegenerateDraft(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, ok := draftID(w, r)
	if !ok {
		return
	}

	var req RegenerateDraftRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	// Verify the draft exists and is still open before enqueueing
	draft, err := h.draftService.Get(r.Context(), user.ID, id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Draft not found")
		return
	}
	if draft.Status.Terminal() {
		respondJSONError(w, http.StatusConflict, "Conflict", "Draft is already finalized")
		return
	}
	// The draft can only be regenerated from the surface it was
	// generated on; anything else is a cross-surface read.
	if err := h.draftService.CheckReadSurface(draft, req.Surface); err != nil {
		respondDraftError(w, err)
		return
	}

	job := queue.NewJob(queue.JobTypeRegenerateDraft, user.ID, &queue.DraftRequest{
		Intent:       req.Intent,
		Text:         req.Text,
		DraftType:    draft.Type,
		Surface:      req.Surface,
		Scope:        req.Scope,
		StrictBudget: req.StrictBudget,
	})
	job.DraftID = &draft.ID

	if err := h.jobQueue.Enqueue(r.Context(), job); err != nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Failed to enqueue regeneration job")
		return
	}

	respondJSON(w, http.StatusAccepted, EnqueuedResponse{JobID: job.ID.String(), Status: "queued"})
}

// draftID parses the draft id path variable, writing the error
// response itself when the id is malformed.
func draftID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	vars := mux.Vars(r)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid draft ID")
		return uuid.Nil, false
	}
	return id, true
}

// respondDraftError maps draft lifecycle errors to HTTP status codes
func respondDraftError(w http.ResponseWriter, err error) {
	var violation *policy.Violation
	var provErr *drafts.ProvenanceError

	switch {
	case errors.Is(err, drafts.ErrAlreadyFinalized):
		respondJSONError(w, http.StatusConflict, "Conflict", "Draft is already finalized")
	case errors.Is(err, drafts.ErrNoElementsSelected):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "At least one element must be selected")
	case errors.Is(err, drafts.ErrPartialNotSupported):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "This draft type does not support partial application")
	case policy.IsViolation(err, policy.InvariantDraftConfirmation):
		respondJSONError(w, http.StatusConflict, "Confirmation Required", "Drafts are never applied without explicit confirmation")
	case errors.As(err, &violation):
		respondJSONError(w, http.StatusForbidden, "Forbidden", violation.UserMessage())
	case errors.As(err, &provErr):
		respondJSONError(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	default:
		respondJSONError(w, http.StatusNotFound, "Not Found", "Draft not found")
	}
}
