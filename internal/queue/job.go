package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/internal/models"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeDraftGeneration is a job for generating one AI draft
	JobTypeDraftGeneration JobType = "draft_generation"
	// JobTypeRegenerateDraft is a job for regenerating an existing draft
	// against a fresh context snapshot
	JobTypeRegenerateDraft JobType = "regenerate_draft"
)

// DraftRequest is the generation payload carried by a job. It mirrors
// the orchestrator's input so the worker can run the full pipeline
// without the original HTTP request.
type DraftRequest struct {
	Intent       string              `json:"intent"`
	Text         string              `json:"text"`
	DraftType    models.DraftType    `json:"draft_type,omitempty"`
	Surface      models.ChatSurface  `json:"surface"`
	Scope        models.ContextScope `json:"scope"`
	StrictBudget bool                `json:"strict_budget,omitempty"`
}

// Job represents a job in the queue
type Job struct {
	ID      uuid.UUID     `json:"id"`
	Type    JobType       `json:"type"`
	UserID  uuid.UUID     `json:"user_id"`
	Request *DraftRequest `json:"request,omitempty"`
	// DraftID is set for regeneration jobs
	DraftID    *uuid.UUID     `json:"draft_id,omitempty"`
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`   // Job-specific data
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID uuid.UUID, request *DraftRequest) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		Request:    request,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
	}
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
