package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/mediagrab/api/internal/model"
	"github.com/mediagrab/api/internal/service"
)

// JobRunner executes a submitted download job.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// DownloadWorker processes queued download jobs
type DownloadWorker struct {
	runner JobRunner
}

// NewDownloadWorker creates a new download worker
func NewDownloadWorker(runner JobRunner) *DownloadWorker {
	return &DownloadWorker{runner: runner}
}

// ProcessTask handles download task processing. Failed downloads are never
// retried; the job record already carries the outcome.
func (w *DownloadWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := service.ParseTaskPayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Starting download task for job: %s", payload.JobID)
	if err := w.runner.Run(ctx, payload.JobID); err != nil {
		if _, ok := model.AsError(err); ok {
			return fmt.Errorf("download job %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("download job %s: %w", payload.JobID, err)
	}
	return nil
}
