package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/planforge/planforge/internal/assembly"
	"github.com/planforge/planforge/internal/middleware"
	"github.com/planforge/planforge/internal/models"
	"github.com/planforge/planforge/internal/policy"
	"github.com/planforge/planforge/internal/queue"
	"github.com/planforge/planforge/internal/services/ai"
	"github.com/planforge/planforge/internal/validation"
)

// AssistantService is the subset of the orchestrator the transport
// layer calls.
type AssistantService interface {
	Generate(ctx context.Context, in ai.GenerateInput) (*ai.GenerateResult, error)
	Chat(ctx context.Context, in ai.GenerateInput) (*ai.ChatResult, error)
}

// AssistantHandler handles AI generation and chat requests
type AssistantHandler struct {
	assistant AssistantService
	jobQueue  queue.JobQueue
}

// NewAssistantHandler creates a new assistant handler
func NewAssistantHandler(assistant AssistantService, jobQueue queue.JobQueue) *AssistantHandler {
	return &AssistantHandler{assistant: assistant, jobQueue: jobQueue}
}

// RegisterRoutes registers assistant routes on the given router
// The router should already have the /assistant prefix
func (h *AssistantHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/generate", h.Generate).Methods("POST")
	r.HandleFunc("/chat", h.Chat).Methods("POST")
}

const (
	// MaxInputTextLength is the maximum length for assistant input text
	MaxInputTextLength = 10000
)

// GenerateRequest represents a draft generation request
type GenerateRequest struct {
	Intent       string              `json:"intent" validate:"required,intent"`
	Text         string              `json:"text" validate:"required,min=1,max=10000"`
	DraftType    string              `json:"draft_type,omitempty"`
	Surface      models.ChatSurface  `json:"surface"`
	Scope        models.ContextScope `json:"scope"`
	StrictBudget bool                `json:"strict_budget,omitempty"`
	// Async enqueues the generation instead of running it inline
	Async bool `json:"async,omitempty"`
}

// ChatRequest represents a chat turn request
type ChatRequest struct {
	Text    string              `json:"text" validate:"required,min=1,max=10000"`
	Surface models.ChatSurface  `json:"surface"`
	Scope   models.ContextScope `json:"scope"`
}

// GenerateResponse represents the synchronous generation response
type GenerateResponse struct {
	Draft       *models.AIDraft          `json:"draft"`
	Tags        []models.ResolvedTag     `json:"tags,omitempty"`
	TagsDropped int                      `json:"tags_dropped,omitempty"`
	Violations  []models.BudgetViolation `json:"budget_violations,omitempty"`
	Route       *models.ResolvedRoute    `json:"route,omitempty"`
}

// EnqueuedResponse represents an accepted async generation request
type EnqueuedResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ChatResponse represents a chat turn response
type ChatResponse struct {
	Message     string                `json:"message"`
	Tags        []models.ResolvedTag  `json:"tags,omitempty"`
	TagsDropped int                   `json:"tags_dropped,omitempty"`
	ContextHash string                `json:"context_hash,omitempty"`
	Route       *models.ResolvedRoute `json:"route,omitempty"`
}

// Generate runs the generation pipeline, inline or via the job queue
func (h *AssistantHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req GenerateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	req.Text = validation.SanitizeText(req.Text)
	if req.Text == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Text is required and cannot be empty after sanitization")
		return
	}
	if err := validation.ValidateSurfaceType(string(req.Surface.Type)); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if req.DraftType != "" {
		if err := validation.ValidateDraftType(req.DraftType); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
	}

	if req.Async {
		job := queue.NewJob(queue.JobTypeDraftGeneration, user.ID, &queue.DraftRequest{
			Intent:       req.Intent,
			Text:         req.Text,
			DraftType:    models.DraftType(req.DraftType),
			Surface:      req.Surface,
			Scope:        req.Scope,
			StrictBudget: req.StrictBudget,
		})
		if err := h.jobQueue.Enqueue(r.Context(), job); err != nil {
			respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Failed to enqueue generation job")
			return
		}
		respondJSON(w, http.StatusAccepted, EnqueuedResponse{JobID: job.ID.String(), Status: "queued"})
		return
	}

	result, err := h.assistant.Generate(r.Context(), ai.GenerateInput{
		UserID:       user.ID,
		Surface:      req.Surface,
		Scope:        req.Scope,
		Intent:       req.Intent,
		Text:         req.Text,
		DraftType:    models.DraftType(req.DraftType),
		StrictBudget: req.StrictBudget,
	})
	if err != nil {
		respondPipelineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, GenerateResponse{
		Draft:       result.Draft,
		Tags:        result.Tags,
		TagsDropped: result.TagsDropped,
		Violations:  result.Violations,
		Route:       result.Route,
	})
}

// Chat runs one chat turn. Chat replies are ephemeral and never
// produce a draft.
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req ChatRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	req.Text = validation.SanitizeText(req.Text)
	if req.Text == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Text is required and cannot be empty after sanitization")
		return
	}
	if err := validation.ValidateSurfaceType(string(req.Surface.Type)); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	result, err := h.assistant.Chat(r.Context(), ai.GenerateInput{
		UserID:  user.ID,
		Surface: req.Surface,
		Scope:   req.Scope,
		Text:    req.Text,
	})
	if err != nil {
		respondPipelineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ChatResponse{
		Message:     result.Message,
		Tags:        result.Tags,
		TagsDropped: result.TagsDropped,
		ContextHash: result.ContextHash,
		Route:       result.Route,
	})
}

// decodeRequest decodes and validates a JSON request body. It writes
// the error response itself and returns false when the request is bad.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		// Check if error is due to request size limit
		if maxBytesErr, ok := err.(*http.MaxBytesError); ok {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}

	if err := validation.Validate.Struct(dst); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fieldError := range validationErrors {
				respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", fieldError.Error()))
				return false
			}
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return false
	}
	return true
}

// respondPipelineError maps generation pipeline errors to HTTP status
// codes. Policy violations and permission denials surface only their
// short user message; the diagnostic detail stays in the logs.
func respondPipelineError(w http.ResponseWriter, err error) {
	var violation *policy.Violation
	var permErr *assembly.PermissionError
	var budgetErr *ai.BudgetExceededError
	var notConfigured *ai.ProviderNotConfiguredError
	var notSupported *ai.ModelNotSupportedError

	switch {
	case errors.As(err, &permErr):
		respondJSONError(w, http.StatusForbidden, "Forbidden", permErr.UserMessage())
	case errors.As(err, &violation):
		if violation.Invariant == policy.InvariantSurfaceExclusivity {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", violation.UserMessage())
			return
		}
		respondJSONError(w, http.StatusForbidden, "Forbidden", violation.UserMessage())
	case errors.As(err, &budgetErr):
		respondJSONError(w, http.StatusUnprocessableEntity, "Context Budget Exceeded", err.Error())
	case errors.As(err, &notConfigured), errors.As(err, &notSupported):
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
	case ai.IsQuotaError(err):
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "AI provider quota exhausted, try again later")
	case ai.IsRateLimitError(err):
		respondJSONError(w, http.StatusTooManyRequests, "Too Many Requests", "AI provider rate limited, try again later")
	default:
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to process assistant request")
	}
}
