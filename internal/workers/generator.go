package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/planforge/planforge/internal/drafts"
	"github.com/planforge/planforge/internal/queue"
	"github.com/planforge/planforge/internal/services/ai"
)

// draftOrchestrator is the subset of the orchestrator the worker needs.
type draftOrchestrator interface {
	Generate(ctx context.Context, in ai.GenerateInput) (*ai.GenerateResult, error)
}

// DraftGenerator processes draft generation jobs
type DraftGenerator struct {
	orchestrator draftOrchestrator
	draftService *drafts.Service
	jobQueue     queue.JobQueue // For re-enqueueing jobs with delays
}

// NewDraftGenerator creates a new draft generator
func NewDraftGenerator(
	orchestrator draftOrchestrator,
	draftService *drafts.Service,
	jobQueue queue.JobQueue,
) *DraftGenerator {
	return &DraftGenerator{
		orchestrator: orchestrator,
		draftService: draftService,
		jobQueue:     jobQueue,
	}
}

// ProcessGenerationJob processes a draft generation job
func (g *DraftGenerator) ProcessGenerationJob(ctx context.Context, job *queue.Job) error {
	if job.Request == nil {
		return fmt.Errorf("request is required for draft generation job")
	}

	result, err := g.orchestrator.Generate(ctx, ai.GenerateInput{
		UserID:       job.UserID,
		Surface:      job.Request.Surface,
		Scope:        job.Request.Scope,
		Intent:       job.Request.Intent,
		Text:         job.Request.Text,
		DraftType:    job.Request.DraftType,
		StrictBudget: job.Request.StrictBudget,
	})
	if err != nil {
		return fmt.Errorf("failed to generate draft: %w", err)
	}

	log.Printf("Generated draft %s for user %s: type=%s, intent=%s, tags=%d",
		result.Draft.ID, job.UserID, result.Draft.Type, job.Request.Intent, len(result.Tags))
	return nil
}

// ProcessRegenerateJob processes a regenerate draft job. The prior
// draft is discarded once the replacement is stored, unless it already
// reached a terminal state.
func (g *DraftGenerator) ProcessRegenerateJob(ctx context.Context, job *queue.Job) error {
	if job.Request == nil {
		return fmt.Errorf("request is required for regenerate job")
	}
	if job.DraftID == nil {
		return fmt.Errorf("draft_id is required for regenerate job")
	}

	// Verify the draft still exists and belongs to the user before
	// spending provider tokens on a replacement.
	prior, err := g.draftService.Get(ctx, job.UserID, *job.DraftID)
	if err != nil {
		return fmt.Errorf("failed to get draft: %w", err)
	}
	if prior.Status.Terminal() {
		log.Printf("Skipping regenerate for draft %s (status %s)", prior.ID, prior.Status)
		return nil
	}
	// A regeneration stays on the surface the draft was generated on.
	if err := g.draftService.CheckRegenerateSurface(prior, job.Request.Surface); err != nil {
		return err
	}

	result, err := g.orchestrator.Generate(ctx, ai.GenerateInput{
		UserID:       job.UserID,
		Surface:      job.Request.Surface,
		Scope:        job.Request.Scope,
		Intent:       job.Request.Intent,
		Text:         job.Request.Text,
		DraftType:    job.Request.DraftType,
		StrictBudget: job.Request.StrictBudget,
	})
	if err != nil {
		return fmt.Errorf("failed to regenerate draft: %w", err)
	}

	if _, err := g.draftService.Discard(ctx, job.UserID, prior.ID); err != nil {
		// The replacement exists either way; the stale draft just
		// lingers until the user discards it.
		log.Printf("Failed to discard prior draft %s after regenerate: %v", prior.ID, err)
	}

	log.Printf("Regenerated draft %s -> %s for user %s", prior.ID, result.Draft.ID, job.UserID)
	return nil
}

// ProcessJob processes a job based on its type
func (g *DraftGenerator) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	// Check if job should be processed now (respect NotBefore)
	if !job.ShouldProcess() {
		log.Printf("Job %s not ready yet (NotBefore: %v), skipping", job.ID, job.NotBefore)
		// Re-ack to return to queue and wait
		if ackErr := msg.Ack(); ackErr != nil {
			log.Printf("Failed to ack job for later processing: %v", ackErr)
		}
		return nil
	}

	if job.IsExpired() {
		log.Printf("Job %s expired (NotAfter: %v), dropping", job.ID, job.NotAfter)
		if ackErr := msg.Ack(); ackErr != nil {
			log.Printf("Failed to ack expired job: %v", ackErr)
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeDraftGeneration:
		if err := g.ProcessGenerationJob(ctx, job); err != nil {
			return g.handleJobError(ctx, msg, job, err, "draft generation")
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	case queue.JobTypeRegenerateDraft:
		if err := g.ProcessRegenerateJob(ctx, job); err != nil {
			return g.handleJobError(ctx, msg, job, err, "regenerate")
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack regenerate job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			log.Printf("Failed to nack unknown job type: %v", nackErr)
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError handles errors from job processing with intelligent retry logic
func (g *DraftGenerator) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error, jobType string) error {
	// Check if it's a quota error (should not retry immediately)
	if ai.IsQuotaError(err) {
		log.Printf("Quota exceeded for %s job %s: %v", jobType, job.ID, err)

		// For quota errors, re-enqueue with long delay (1 hour minimum)
		retryDelay := ai.GetRetryDelay(err, job.RetryCount)
		notBefore := time.Now().Add(retryDelay)

		log.Printf("Re-enqueueing %s job %s with NotBefore=%v (quota exhausted, retry in %v)",
			jobType, job.ID, notBefore, retryDelay)

		delayedJob := g.delayedCopy(job, notBefore)

		// Ack the current message
		if ackErr := msg.Ack(); ackErr != nil {
			log.Printf("Failed to ack job before re-enqueue: %v", ackErr)
		}

		// Re-enqueue with delay using NotBefore (RabbitMQ delayed exchange will handle this)
		if g.jobQueue != nil {
			if enqueueErr := g.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
				log.Printf("Failed to re-enqueue job %s with delay: %v", job.ID, enqueueErr)
				return fmt.Errorf("quota exhausted, failed to re-enqueue: %w", enqueueErr)
			}
			log.Printf("Successfully re-enqueued %s job %s for retry at %v", jobType, job.ID, notBefore)
			return nil // Successfully handled
		}

		// If no queue access, nack without requeue to prevent spam
		log.Printf("Warning: No queue access, cannot re-enqueue job with delay. Sending to DLQ.")
		if nackErr := msg.Nack(false); nackErr != nil {
			log.Printf("Failed to nack quota error job: %v", nackErr)
		}

		return fmt.Errorf("quota exhausted (job %s): %w", job.ID, err)
	}

	// Check if it's a rate limit error (should retry with backoff)
	if ai.IsRateLimitError(err) {
		log.Printf("Rate limited for %s job %s: %v", jobType, job.ID, err)

		retryDelay := ai.GetRetryDelay(err, job.RetryCount)

		// For rate limits, re-enqueue with delay using NotBefore
		if job.CanRetry() && g.jobQueue != nil {
			notBefore := time.Now().Add(retryDelay)
			delayedJob := g.delayedCopy(job, notBefore)

			// Ack the current message
			if ackErr := msg.Ack(); ackErr != nil {
				log.Printf("Failed to ack rate limited job: %v", ackErr)
			}

			if enqueueErr := g.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
				log.Printf("Failed to re-enqueue rate limited job %s: %v", job.ID, enqueueErr)
				// Fall back to nack with requeue
				if nackErr := msg.Nack(true); nackErr != nil {
					log.Printf("Failed to nack rate limited job: %v", nackErr)
				}
				return fmt.Errorf("rate limited, failed to re-enqueue: %w", enqueueErr)
			}

			log.Printf("Rate limited: re-enqueued %s job %s for retry at %v (delay: %v)",
				jobType, job.ID, notBefore, retryDelay)
			return nil // Successfully handled
		}

		// Fallback: nack with requeue (immediate retry)
		if job.CanRetry() {
			job.IncrementRetry()
			log.Printf("Rate limit: will retry job %s immediately (attempt %d/%d)",
				job.ID, job.RetryCount, job.MaxRetries)
			if nackErr := msg.Nack(true); nackErr != nil {
				log.Printf("Failed to nack rate limited job: %v", nackErr)
			}
			// Return error to signal worker to wait before processing next job
			return fmt.Errorf("rate limited (will retry): %w", err)
		}
	}

	// For other errors, use standard retry logic
	if ai.IsRetryable(err) && job.CanRetry() {
		job.IncrementRetry()
		log.Printf("%s job %s failed (attempt %d/%d): %v, will retry", jobType, job.ID, job.RetryCount, job.MaxRetries, err)
		if nackErr := msg.Nack(true); nackErr != nil {
			log.Printf("Failed to nack job: %v", nackErr)
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	// Not retryable or max retries exceeded, send to DLQ
	log.Printf("%s job %s failed after %d retries: %v, sending to DLQ", jobType, job.ID, job.RetryCount, err)
	if nackErr := msg.Nack(false); nackErr != nil {
		log.Printf("Failed to nack job to DLQ: %v", nackErr)
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}

// delayedCopy clones a job for delayed redelivery, bumping its retry count.
func (g *DraftGenerator) delayedCopy(job *queue.Job, notBefore time.Time) *queue.Job {
	return &queue.Job{
		ID:         job.ID,
		Type:       job.Type,
		UserID:     job.UserID,
		Request:    job.Request,
		DraftID:    job.DraftID,
		NotBefore:  &notBefore,
		NotAfter:   job.NotAfter,
		Metadata:   job.Metadata,
		CreatedAt:  job.CreatedAt,
		RetryCount: job.RetryCount + 1,
		MaxRetries: job.MaxRetries,
	}
}
