package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/mediagrab/api/internal/service"
)

// Cleaner removes a finished job's files.
type Cleaner interface {
	Cleanup(ctx context.Context, jobID string) error
}

// CleanupWorker removes job workspaces once their retention has passed
type CleanupWorker struct {
	cleaner Cleaner
}

// NewCleanupWorker creates a new cleanup worker
func NewCleanupWorker(cleaner Cleaner) *CleanupWorker {
	return &CleanupWorker{cleaner: cleaner}
}

// ProcessTask handles cleanup task processing. A job whose artifact is still
// streaming returns an error so asynq retries later.
func (w *CleanupWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := service.ParseTaskPayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	err = w.cleaner.Cleanup(ctx, payload.JobID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrArtifactInUse):
		log.Printf("Job %s still streaming, cleanup deferred", payload.JobID)
		return err
	default:
		log.Printf("Cleanup of job %s failed: %v", payload.JobID, err)
		return err
	}
}
