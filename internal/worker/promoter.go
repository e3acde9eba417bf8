package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/jobctl/internal/service"
	"github.com/makeasinger/jobctl/internal/store"
)

// Promotions is the part of the job service the promoter drives
type Promotions interface {
	Promote(ctx context.Context, id string) (bool, error)
}

// Promoter moves delayed jobs to inactive once their delay has elapsed
type Promoter struct {
	jobs Promotions
}

// NewPromoter creates a new promotion worker
func NewPromoter(jobs Promotions) *Promoter {
	return &Promoter{jobs: jobs}
}

// ProcessTask handles promotion task processing
func (w *Promoter) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.PromotePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	promoted, err := w.jobs.Promote(ctx, payload.JobID)
	if errors.Is(err, store.ErrJobNotFound) {
		log.Printf("Skipping promotion of removed job %s", payload.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to promote job %s: %w", payload.JobID, err)
	}

	if promoted {
		log.Printf("Promoted delayed job %s", payload.JobID)
	}
	return nil
}
